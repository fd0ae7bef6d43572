// Package builtins links every builtin plugin into the registry.
package builtins

import (
	_ "github.com/xirelogy/go-qcvm/internal/builtins/console"
	_ "github.com/xirelogy/go-qcvm/internal/builtins/fixme"
	_ "github.com/xirelogy/go-qcvm/internal/builtins/mathlib"
	_ "github.com/xirelogy/go-qcvm/internal/builtins/vector"
)
