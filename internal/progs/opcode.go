package progs

// Opcode values are fixed by the compiled program format and must not be
// reordered.
const (
	OP_DONE uint16 = iota
	OP_MUL_F
	OP_MUL_V
	OP_MUL_FV
	OP_MUL_VF
	OP_DIV_F
	OP_ADD_F
	OP_ADD_V
	OP_SUB_F
	OP_SUB_V

	OP_EQ_F
	OP_EQ_V
	OP_EQ_S
	OP_EQ_E
	OP_EQ_FNC

	OP_NE_F
	OP_NE_V
	OP_NE_S
	OP_NE_E
	OP_NE_FNC

	OP_LE
	OP_GE
	OP_LT
	OP_GT

	OP_LOAD_F
	OP_LOAD_V
	OP_LOAD_S
	OP_LOAD_ENT
	OP_LOAD_FLD
	OP_LOAD_FNC

	OP_ADDRESS

	OP_STORE_F
	OP_STORE_V
	OP_STORE_S
	OP_STORE_ENT
	OP_STORE_FLD
	OP_STORE_FNC

	OP_STOREP_F
	OP_STOREP_V
	OP_STOREP_S
	OP_STOREP_ENT
	OP_STOREP_FLD
	OP_STOREP_FNC

	OP_RETURN
	OP_NOT_F
	OP_NOT_V
	OP_NOT_S
	OP_NOT_ENT
	OP_NOT_FNC
	OP_IF
	OP_IFNOT
	OP_CALL0
	OP_CALL1
	OP_CALL2
	OP_CALL3
	OP_CALL4
	OP_CALL5
	OP_CALL6
	OP_CALL7
	OP_CALL8
	OP_STATE
	OP_GOTO
	OP_AND
	OP_OR

	OP_BITAND
	OP_BITOR

	opCount
)

var opNames = [opCount]string{
	"DONE",
	"MUL_F", "MUL_V", "MUL_FV", "MUL_VF",
	"DIV",
	"ADD_F", "ADD_V",
	"SUB_F", "SUB_V",
	"EQ_F", "EQ_V", "EQ_S", "EQ_E", "EQ_FNC",
	"NE_F", "NE_V", "NE_S", "NE_E", "NE_FNC",
	"LE", "GE", "LT", "GT",
	"INDIRECT", "INDIRECT", "INDIRECT", "INDIRECT", "INDIRECT", "INDIRECT",
	"ADDRESS",
	"STORE_F", "STORE_V", "STORE_S", "STORE_ENT", "STORE_FLD", "STORE_FNC",
	"STOREP_F", "STOREP_V", "STOREP_S", "STOREP_ENT", "STOREP_FLD", "STOREP_FNC",
	"RETURN",
	"NOT_F", "NOT_V", "NOT_S", "NOT_ENT", "NOT_FNC",
	"IF", "IFNOT",
	"CALL0", "CALL1", "CALL2", "CALL3", "CALL4", "CALL5", "CALL6", "CALL7", "CALL8",
	"STATE",
	"GOTO",
	"AND", "OR",
	"BITAND", "BITOR",
}

// OpName returns the mnemonic for op and false when op is not a known opcode.
func OpName(op uint16) (string, bool) {
	if op >= opCount {
		return "", false
	}
	return opNames[op], true
}

// IsStore reports whether op is one of the direct STORE_* opcodes.
func IsStore(op uint16) bool {
	return op >= OP_STORE_F && op <= OP_STORE_FNC
}

// IsCall reports whether op is one of CALL0..CALL8.
func IsCall(op uint16) bool {
	return op >= OP_CALL0 && op <= OP_CALL8
}
