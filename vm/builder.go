package vm

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/colorfulnotion/nexusvm/common"
)

// ScriptBuilder assembles bytecode. Jumps may reference labels defined later.
type ScriptBuilder struct {
	code   []byte
	labels map[string]uint16
	fixups map[int]string
	err    error
}

func NewScriptBuilder() *ScriptBuilder {
	return &ScriptBuilder{
		labels: make(map[string]uint16),
		fixups: make(map[int]string),
	}
}

func (sb *ScriptBuilder) Emit(op Opcode, operands ...byte) *ScriptBuilder {
	sb.code = append(sb.code, byte(op))
	sb.code = append(sb.code, operands...)
	return sb
}

func (sb *ScriptBuilder) EmitLabel(name string) *ScriptBuilder {
	if _, ok := sb.labels[name]; ok && sb.err == nil {
		sb.err = fmt.Errorf("label %q defined twice", name)
	}
	sb.labels[name] = uint16(len(sb.code))
	return sb
}

func (sb *ScriptBuilder) emitTarget(label string) {
	sb.fixups[len(sb.code)] = label
	sb.code = append(sb.code, 0, 0)
}

func (sb *ScriptBuilder) EmitJump(op Opcode, label string, reg byte) *ScriptBuilder {
	switch op {
	case JMP:
		sb.Emit(JMP)
	case JMPIF, JMPNOT:
		sb.Emit(op, reg)
	default:
		if sb.err == nil {
			sb.err = fmt.Errorf("%s is not a jump", op)
		}
		return sb
	}
	sb.emitTarget(label)
	return sb
}

func (sb *ScriptBuilder) EmitCall(label string, registerCount byte) *ScriptBuilder {
	sb.Emit(CALL, registerCount)
	sb.emitTarget(label)
	return sb
}

func (sb *ScriptBuilder) EmitLoad(reg byte, typ VMType, data []byte) *ScriptBuilder {
	sb.Emit(LOAD, reg, byte(typ))
	sb.code = binary.AppendUvarint(sb.code, uint64(len(data)))
	sb.code = append(sb.code, data...)
	return sb
}

func (sb *ScriptBuilder) EmitLoadString(reg byte, s string) *ScriptBuilder {
	return sb.EmitLoad(reg, TypeString, []byte(s))
}

func (sb *ScriptBuilder) EmitLoadBytes(reg byte, b []byte) *ScriptBuilder {
	return sb.EmitLoad(reg, TypeBytes, b)
}

func (sb *ScriptBuilder) EmitLoadNumber(reg byte, n *big.Int) *ScriptBuilder {
	return sb.EmitLoad(reg, TypeNumber, numberToBytes(n))
}

func (sb *ScriptBuilder) EmitLoadInt(reg byte, n int64) *ScriptBuilder {
	return sb.EmitLoadNumber(reg, big.NewInt(n))
}

func (sb *ScriptBuilder) EmitLoadBool(reg byte, v bool) *ScriptBuilder {
	b := byte(0)
	if v {
		b = 1
	}
	return sb.EmitLoad(reg, TypeBool, []byte{b})
}

func (sb *ScriptBuilder) EmitMove(src, dst byte) *ScriptBuilder {
	return sb.Emit(MOVE, src, dst)
}

func (sb *ScriptBuilder) EmitCopy(src, dst byte) *ScriptBuilder {
	return sb.Emit(COPY, src, dst)
}

func (sb *ScriptBuilder) EmitPush(reg byte) *ScriptBuilder {
	return sb.Emit(PUSH, reg)
}

func (sb *ScriptBuilder) EmitPop(reg byte) *ScriptBuilder {
	return sb.Emit(POP, reg)
}

func (sb *ScriptBuilder) EmitThrow(msg string) *ScriptBuilder {
	sb.EmitLoadString(0, msg)
	return sb.Emit(THROW, 0)
}

func (sb *ScriptBuilder) EmitReturn() *ScriptBuilder {
	return sb.Emit(RET)
}

// emitArgs pushes args last to first so the callee pops them in declaration order.
func (sb *ScriptBuilder) emitArgs(args []interface{}) {
	for i := len(args) - 1; i >= 0; i-- {
		sb.emitValue(0, args[i])
		sb.EmitPush(0)
	}
}

func (sb *ScriptBuilder) emitValue(reg byte, arg interface{}) {
	switch v := arg.(type) {
	case string:
		sb.EmitLoadString(reg, v)
	case []byte:
		sb.EmitLoadBytes(reg, v)
	case bool:
		sb.EmitLoadBool(reg, v)
	case int:
		sb.EmitLoadInt(reg, int64(v))
	case int64:
		sb.EmitLoadInt(reg, v)
	case uint64:
		sb.EmitLoadNumber(reg, new(big.Int).SetUint64(v))
	case *big.Int:
		sb.EmitLoadNumber(reg, v)
	case common.Address:
		sb.EmitLoadBytes(reg, v.Bytes())
	case common.Hash:
		sb.EmitLoadBytes(reg, v.Bytes())
	default:
		if sb.err == nil {
			sb.err = fmt.Errorf("unsupported script argument %T", arg)
		}
	}
}

// CallInterop emits an external call to method with args pushed on the operand stack.
func (sb *ScriptBuilder) CallInterop(method string, args ...interface{}) *ScriptBuilder {
	sb.emitArgs(args)
	sb.EmitLoadString(0, method)
	return sb.Emit(EXTCALL, 0)
}

// CallContract switches into the named contract with method and args on the operand stack.
func (sb *ScriptBuilder) CallContract(contract, method string, args ...interface{}) *ScriptBuilder {
	sb.emitArgs(args)
	sb.EmitLoadString(0, method)
	sb.EmitPush(0)
	sb.EmitLoadString(0, contract)
	sb.Emit(CTX, 0, 1)
	return sb.Emit(SWITCH, 1)
}

// ToScript resolves label references and returns the bytecode.
func (sb *ScriptBuilder) ToScript() ([]byte, error) {
	if sb.err != nil {
		return nil, sb.err
	}
	out := make([]byte, len(sb.code))
	copy(out, sb.code)
	for pos, label := range sb.fixups {
		target, ok := sb.labels[label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q", label)
		}
		binary.LittleEndian.PutUint16(out[pos:], target)
	}
	return out, nil
}
