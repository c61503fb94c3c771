package vm

import "fmt"

type Opcode byte

const (
	NOP Opcode = iota

	// register
	MOVE
	COPY
	PUSH
	POP
	SWAP

	// flow
	CALL
	EXTCALL
	JMP
	JMPIF
	JMPNOT
	RET
	THROW

	// data
	LOAD
	CAT
	SIZE
	LEFT
	RIGHT

	// logical
	NOT
	AND
	OR
	XOR
	EQUAL
	LT
	GT
	LTE
	GTE

	// numeric
	INC
	DEC
	SIGN
	NEGATE
	ABS
	ADD
	SUB
	MUL
	DIV
	MOD
	SHL
	SHR
	MIN
	MAX

	// structs
	PUT
	GET

	// contexts
	CTX
	SWITCH

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	NOP: "NOP", MOVE: "MOVE", COPY: "COPY", PUSH: "PUSH", POP: "POP", SWAP: "SWAP",
	CALL: "CALL", EXTCALL: "EXTCALL", JMP: "JMP", JMPIF: "JMPIF", JMPNOT: "JMPNOT", RET: "RET", THROW: "THROW",
	LOAD: "LOAD", CAT: "CAT", SIZE: "SIZE", LEFT: "LEFT", RIGHT: "RIGHT",
	NOT: "NOT", AND: "AND", OR: "OR", XOR: "XOR", EQUAL: "EQUAL", LT: "LT", GT: "GT", LTE: "LTE", GTE: "GTE",
	INC: "INC", DEC: "DEC", SIGN: "SIGN", NEGATE: "NEGATE", ABS: "ABS",
	ADD: "ADD", SUB: "SUB", MUL: "MUL", DIV: "DIV", MOD: "MOD", SHL: "SHL", SHR: "SHR", MIN: "MIN", MAX: "MAX",
	PUT: "PUT", GET: "GET",
	CTX: "CTX", SWITCH: "SWITCH",
}

func (op Opcode) IsValid() bool {
	return op < opcodeCount
}

func (op Opcode) String() string {
	if op.IsValid() {
		return opcodeNames[op]
	}
	return fmt.Sprintf("OP(%d)", byte(op))
}
