package vm

// GetGasCostForOpcode returns the gas charged before op executes. The table is total:
// opcodes not listed cost 1.
func GetGasCostForOpcode(op Opcode) int64 {
	switch op {
	case GET, PUT, CALL, LOAD:
		return 2

	case EXTCALL:
		return 3

	case CTX:
		return 5

	case SWITCH:
		return 10

	case NOP, RET:
		return 0

	default:
		return 1
	}
}
