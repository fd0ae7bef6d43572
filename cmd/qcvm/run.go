package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xirelogy/go-qcvm"
)

func openContext(path string, side qcvm.Side) (*qcvm.Context, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return qcvm.NewContext(side, image, qcvm.Options{
		RunawayLimit: cfg.VM.RunawayLimit,
		MaxEntities:  cfg.VM.MaxEntities,
		Console:      os.Stdout,
	})
}

func parseSide(s string) (qcvm.Side, error) {
	switch s {
	case "server", "sv":
		return qcvm.Server, nil
	case "client", "cl":
		return qcvm.Client, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <image>",
		Short: "Disassemble every function of a program image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContext(args[0], qcvm.Server)
			if err != nil {
				return err
			}
			return c.Disassemble(cmd.OutOrStdout())
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		side  string
		trace bool
	)
	cmd := &cobra.Command{
		Use:   "run <image> <function>...",
		Short: "Execute functions of a program image in order",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseSide(side)
			if err != nil {
				return err
			}
			c, err := openContext(args[0], s)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if trace || cfg.VM.Trace {
				c.SetTraceHook(func(info qcvm.TraceInfo) {
					fmt.Fprintf(out, "%12s : %-16s %04d %s\n", info.Source, info.Function, info.Statement, info.Op)
				})
			}
			for _, name := range args[1:] {
				if err := c.Execute(cmd.Context(), name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				fmt.Fprintf(out, "%s returned %g\n", name, c.ReturnFloat())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&side, "side", "server", "program side (server or client)")
	cmd.Flags().BoolVar(&trace, "trace", false, "print every dispatched statement")
	return cmd
}

func newProfileCmd() *cobra.Command {
	var (
		count int
		top   int
	)
	cmd := &cobra.Command{
		Use:   "profile <image> <function>",
		Short: "Run a function repeatedly and report the busiest functions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContext(args[0], qcvm.Server)
			if err != nil {
				return err
			}
			for i := 0; i < count; i++ {
				if err := c.Execute(cmd.Context(), args[1]); err != nil {
					return err
				}
			}
			if top <= 0 {
				top = cfg.Profile.Top
			}
			return c.Profile(cmd.OutOrStdout(), top)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of executions")
	cmd.Flags().IntVar(&top, "top", 0, "functions to report (default from config)")
	return cmd
}
