// opcodes.go — the instruction set of C7, spec.md §4.7.
//
// Grounded on the teacher's vm.go opcode table and pack/unpack encoding,
// generalized from the teacher's 20-odd opcodes (a tree-walker's small
// constant/arith/call set) to the full register-machine instruction set
// spec.md §4.7 names. Each Instruction is a fixed-size Go struct so
// "decoding knows the size from the opcode alone" holds trivially; which
// fields are meaningful is determined by Op.
package horse64

// Opcode is the first field of every instruction record.
type Opcode uint8

const (
	OpSETCONST Opcode = iota
	OpSETGLOBAL
	OpGETGLOBAL
	OpGETFUNC
	OpGETCLASS
	OpVALUECOPY
	OpBINOP
	OpUNOP
	OpCALL
	OpSETTOP
	OpRETURNVALUE
	OpJUMPTARGET
	OpCONDJUMP
	OpJUMP
	OpNEWITERATOR
	OpITERATE
	OpPUSHCATCHFRAME
	OpADDCATCHTYPE
	OpADDCATCHTYPEBYREF
	OpPOPCATCHFRAME
	OpGETMEMBER
	OpJUMPTOFINALLY
	OpNEWLIST
	OpADDTOLIST
	OpNEWSET
	OpADDTOSET
	OpNEWVECTOR
	OpPUTVECTOR
	OpNEWMAP
	OpPUTMAP
)

var opcodeNames = [...]string{
	"SETCONST", "SETGLOBAL", "GETGLOBAL", "GETFUNC", "GETCLASS", "VALUECOPY",
	"BINOP", "UNOP", "CALL", "SETTOP", "RETURNVALUE", "JUMPTARGET", "CONDJUMP",
	"JUMP", "NEWITERATOR", "ITERATE", "PUSHCATCHFRAME", "ADDCATCHTYPE",
	"ADDCATCHTYPEBYREF", "POPCATCHFRAME", "GETMEMBER", "JUMPTOFINALLY",
	"NEWLIST", "ADDTOLIST", "NEWSET", "ADDTOSET", "NEWVECTOR", "PUTVECTOR",
	"NEWMAP", "PUTMAP",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return "UNKNOWN"
}

// BinOp is the operator carried by a BINOP instruction.
type BinOp uint8

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
	BinAnd
	BinOr
)

// UnOp is the operator carried by a UNOP instruction.
type UnOp uint8

const (
	UnNeg UnOp = iota
	UnNot
)

// Instruction is one fixed-size record in a function's instruction
// buffer. Dst/A/B are slot indices relative to the active frame's floor
// unless the opcode's comment says otherwise; Imm carries an opcode-
// specific immediate (jump target, func/class id, member-name id, arg
// count, bin/un-op code...).
type Instruction struct {
	Op    Opcode
	Dst   int
	A     int
	B     int
	Imm   int
	Const Value // only meaningful for SETCONST
}

func instr(op Opcode, dst, a, b, imm int) Instruction {
	return Instruction{Op: op, Dst: dst, A: a, B: b, Imm: imm}
}
