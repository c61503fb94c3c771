package vm

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/colorfulnotion/nexusvm/log"
	"github.com/colorfulnotion/nexusvm/vmerrors"
)

const (
	maxShift = 1024

	// MaxNumberBits bounds the magnitude of every number an instruction produces.
	MaxNumberBits = 2048
	// MaxBytesSize bounds bytes and strings produced by LOAD and CAT.
	MaxBytesSize = 64 * 1024
	// MaxStructFields bounds the fields of a struct, nested structs included.
	MaxStructFields = 1024
)

func checkNumber(n *big.Int) error {
	if n.BitLen() > MaxNumberBits {
		return fmt.Errorf("%w: number of %d bits exceeds %d", vmerrors.ErrInvalidOperand, n.BitLen(), MaxNumberBits)
	}
	return nil
}

func checkSize(size int) error {
	if size > MaxBytesSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", vmerrors.ErrInvalidOperand, size, MaxBytesSize)
	}
	return nil
}

// ScriptContext runs bytecode.
type ScriptContext struct {
	name   string
	Script []byte

	// InstructionPointer is the offset of the instruction being executed, kept for diagnostics.
	InstructionPointer uint32
}

func NewScriptContext(name string, script []byte) *ScriptContext {
	return &ScriptContext{name: name, Script: script}
}

func (sc *ScriptContext) Name() string {
	return sc.name
}

// Execute runs the script from offset 0 until it halts, faults or breaks.
func (sc *ScriptContext) Execute(frame *ExecutionFrame, stack *Stack) ExecutionState {
	r := &scriptRunner{ctx: sc, vm: frame.VM, stack: stack}
	for {
		if r.ip >= uint32(len(sc.Script)) {
			return Halt
		}
		sc.InstructionPointer = r.ip

		opcode := Opcode(sc.Script[r.ip])
		r.ip++
		if !opcode.IsValid() {
			return r.fault(fmt.Errorf("%w: 0x%02x at %d", vmerrors.ErrInvalidOpcode, byte(opcode), sc.InstructionPointer))
		}
		if state := r.vm.ValidateOpcode(opcode); state != Running {
			return state
		}

		state, err := r.step(opcode)
		if err != nil {
			return r.fault(fmt.Errorf("%s at %d: %w", opcode, sc.InstructionPointer, err))
		}
		if state != Running {
			return state
		}
	}
}

type scriptRunner struct {
	ctx   *ScriptContext
	vm    *VirtualMachine
	stack *Stack
	ip    uint32
}

func (r *scriptRunner) fault(err error) ExecutionState {
	r.vm.SetFault(err)
	log.Debug(log.VMMonitoring, "script fault", "context", r.ctx.name, "err", err)
	return Fault
}

func (r *scriptRunner) read8() (byte, error) {
	if r.ip >= uint32(len(r.ctx.Script)) {
		return 0, vmerrors.ErrInvalidOperand
	}
	b := r.ctx.Script[r.ip]
	r.ip++
	return b, nil
}

func (r *scriptRunner) read16() (uint16, error) {
	if r.ip+2 > uint32(len(r.ctx.Script)) {
		return 0, vmerrors.ErrInvalidOperand
	}
	v := binary.LittleEndian.Uint16(r.ctx.Script[r.ip:])
	r.ip += 2
	return v, nil
}

func (r *scriptRunner) readVarBytes() ([]byte, error) {
	n, size := binary.Uvarint(r.ctx.Script[r.ip:])
	if size <= 0 {
		return nil, vmerrors.ErrInvalidOperand
	}
	r.ip += uint32(size)
	if n > uint64(len(r.ctx.Script)) || r.ip+uint32(n) > uint32(len(r.ctx.Script)) {
		return nil, vmerrors.ErrInvalidOperand
	}
	out := r.ctx.Script[r.ip : r.ip+uint32(n)]
	r.ip += uint32(n)
	return out, nil
}

// reg reads a register operand of the current frame.
func (r *scriptRunner) reg() (*VMObject, error) {
	idx, err := r.read8()
	if err != nil {
		return nil, err
	}
	return r.vm.CurrentFrame().Register(int(idx))
}

func (r *scriptRunner) regs2() (*VMObject, *VMObject, error) {
	a, err := r.reg()
	if err != nil {
		return nil, nil, err
	}
	b, err := r.reg()
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (r *scriptRunner) regs3() (*VMObject, *VMObject, *VMObject, error) {
	a, b, err := r.regs2()
	if err != nil {
		return nil, nil, nil, err
	}
	c, err := r.reg()
	if err != nil {
		return nil, nil, nil, err
	}
	return a, b, c, nil
}

func (r *scriptRunner) jumpTarget() (uint32, error) {
	off, err := r.read16()
	if err != nil {
		return 0, err
	}
	if uint32(off) > uint32(len(r.ctx.Script)) {
		return 0, fmt.Errorf("%w: %d", vmerrors.ErrInvalidJump, off)
	}
	return uint32(off), nil
}

func (r *scriptRunner) step(opcode Opcode) (ExecutionState, error) {
	switch opcode {
	case NOP:

	case MOVE:
		src, dst, err := r.regs2()
		if err != nil {
			return Fault, err
		}
		*dst = *src
		*src = VMObject{}

	case COPY:
		src, dst, err := r.regs2()
		if err != nil {
			return Fault, err
		}
		*dst = src.Copy()

	case PUSH:
		src, err := r.reg()
		if err != nil {
			return Fault, err
		}
		r.stack.Push(src.Copy())

	case POP:
		dst, err := r.reg()
		if err != nil {
			return Fault, err
		}
		obj, err := r.stack.Pop()
		if err != nil {
			return Fault, err
		}
		*dst = obj

	case SWAP:
		a, b, err := r.regs2()
		if err != nil {
			return Fault, err
		}
		*a, *b = *b, *a

	case CALL:
		count, err := r.read8()
		if err != nil {
			return Fault, err
		}
		target, err := r.jumpTarget()
		if err != nil {
			return Fault, err
		}
		if count == 0 || int(count) > MaxRegisterCount {
			return Fault, fmt.Errorf("%w: %d", vmerrors.ErrTooManyRegisters, count)
		}
		r.vm.PushCallFrame(r.ctx, r.ip, int(count))
		r.ip = target

	case EXTCALL:
		src, err := r.reg()
		if err != nil {
			return Fault, err
		}
		method, err := src.AsString()
		if err != nil {
			return Fault, err
		}
		if state := r.vm.ExecuteInterop(method); state != Running {
			return state, nil
		}

	case JMP:
		target, err := r.jumpTarget()
		if err != nil {
			return Fault, err
		}
		r.ip = target

	case JMPIF, JMPNOT:
		src, err := r.reg()
		if err != nil {
			return Fault, err
		}
		target, err := r.jumpTarget()
		if err != nil {
			return Fault, err
		}
		cond, err := src.AsBool()
		if err != nil {
			return Fault, err
		}
		if opcode == JMPNOT {
			cond = !cond
		}
		if cond {
			r.ip = target
		}

	case RET:
		if r.vm.FrameCount() > 1 && r.vm.PeekFrame().Context == ExecutionContext(r.ctx) {
			r.ip = r.vm.PopFrame()
			return Running, nil
		}
		return Halt, nil

	case THROW:
		src, err := r.reg()
		if err != nil {
			return Fault, err
		}
		msg, _ := src.AsString()
		return Fault, fmt.Errorf("%w: %s", vmerrors.ErrScriptThrow, msg)

	case LOAD:
		dst, err := r.reg()
		if err != nil {
			return Fault, err
		}
		typ, err := r.read8()
		if err != nil {
			return Fault, err
		}
		data, err := r.readVarBytes()
		if err != nil {
			return Fault, err
		}
		if err := checkSize(len(data)); err != nil {
			return Fault, err
		}
		obj, err := decodeLiteral(VMType(typ), data)
		if err != nil {
			return Fault, err
		}
		*dst = obj

	case CAT:
		a, b, dst, err := r.regs3()
		if err != nil {
			return Fault, err
		}
		if a.Type == TypeString && b.Type == TypeString {
			left, right := a.Data.(string), b.Data.(string)
			if err := checkSize(len(left) + len(right)); err != nil {
				return Fault, err
			}
			*dst = NewString(left + right)
			break
		}
		left, err := a.AsBytes()
		if err != nil {
			return Fault, err
		}
		right, err := b.AsBytes()
		if err != nil {
			return Fault, err
		}
		if err := checkSize(len(left) + len(right)); err != nil {
			return Fault, err
		}
		*dst = NewBytes(append(left, right...))

	case SIZE:
		src, dst, err := r.regs2()
		if err != nil {
			return Fault, err
		}
		var size int
		if src.Type == TypeString {
			size = len(src.Data.(string))
		} else {
			b, err := src.AsBytes()
			if err != nil {
				return Fault, err
			}
			size = len(b)
		}
		*dst = NewNumberFromInt64(int64(size))

	case LEFT, RIGHT:
		src, dst, err := r.regs2()
		if err != nil {
			return Fault, err
		}
		n, err := r.read8()
		if err != nil {
			return Fault, err
		}
		return Running, sliceOp(opcode, src, dst, int(n))

	case NOT:
		src, dst, err := r.regs2()
		if err != nil {
			return Fault, err
		}
		v, err := src.AsBool()
		if err != nil {
			return Fault, err
		}
		*dst = NewBool(!v)

	case AND, OR, XOR:
		a, b, dst, err := r.regs3()
		if err != nil {
			return Fault, err
		}
		x, err := a.AsBool()
		if err != nil {
			return Fault, err
		}
		y, err := b.AsBool()
		if err != nil {
			return Fault, err
		}
		switch opcode {
		case AND:
			*dst = NewBool(x && y)
		case OR:
			*dst = NewBool(x || y)
		default:
			*dst = NewBool(x != y)
		}

	case EQUAL:
		a, b, dst, err := r.regs3()
		if err != nil {
			return Fault, err
		}
		*dst = NewBool(a.Equal(*b))

	case LT, GT, LTE, GTE:
		a, b, dst, err := r.regs3()
		if err != nil {
			return Fault, err
		}
		x, y, err := numbers(a, b)
		if err != nil {
			return Fault, err
		}
		c := x.Cmp(y)
		switch opcode {
		case LT:
			*dst = NewBool(c < 0)
		case GT:
			*dst = NewBool(c > 0)
		case LTE:
			*dst = NewBool(c <= 0)
		default:
			*dst = NewBool(c >= 0)
		}

	case INC, DEC:
		dst, err := r.reg()
		if err != nil {
			return Fault, err
		}
		n, err := dst.AsNumber()
		if err != nil {
			return Fault, err
		}
		if opcode == INC {
			n.Add(n, big.NewInt(1))
		} else {
			n.Sub(n, big.NewInt(1))
		}
		if err := checkNumber(n); err != nil {
			return Fault, err
		}
		*dst = VMObject{Type: TypeNumber, Data: n}

	case SIGN, NEGATE, ABS:
		src, dst, err := r.regs2()
		if err != nil {
			return Fault, err
		}
		n, err := src.AsNumber()
		if err != nil {
			return Fault, err
		}
		switch opcode {
		case SIGN:
			n.SetInt64(int64(n.Sign()))
		case NEGATE:
			n.Neg(n)
		default:
			n.Abs(n)
		}
		if err := checkNumber(n); err != nil {
			return Fault, err
		}
		*dst = VMObject{Type: TypeNumber, Data: n}

	case ADD, SUB, MUL, DIV, MOD, SHL, SHR, MIN, MAX:
		a, b, dst, err := r.regs3()
		if err != nil {
			return Fault, err
		}
		x, y, err := numbers(a, b)
		if err != nil {
			return Fault, err
		}
		result, err := arithmetic(opcode, x, y)
		if err != nil {
			return Fault, err
		}
		*dst = VMObject{Type: TypeNumber, Data: result}

	case PUT:
		src, dst, key, err := r.regs3()
		if err != nil {
			return Fault, err
		}
		name, err := key.AsString()
		if err != nil {
			return Fault, err
		}
		value := src.Copy()
		if dst.Type != TypeStruct {
			*dst = NewStruct()
		}
		fields := dst.Data.(map[string]VMObject)
		total := dst.fieldCount() + 1 + value.fieldCount()
		if old, ok := fields[name]; ok {
			total -= 1 + old.fieldCount()
		}
		if total > MaxStructFields {
			return Fault, fmt.Errorf("%w: struct of %d fields exceeds %d", vmerrors.ErrInvalidOperand, total, MaxStructFields)
		}
		fields[name] = value

	case GET:
		src, dst, key, err := r.regs3()
		if err != nil {
			return Fault, err
		}
		name, err := key.AsString()
		if err != nil {
			return Fault, err
		}
		fields, err := src.AsStruct()
		if err != nil {
			return Fault, err
		}
		*dst = fields[name].Copy()

	case CTX:
		src, dst, err := r.regs2()
		if err != nil {
			return Fault, err
		}
		name, err := src.AsString()
		if err != nil {
			return Fault, err
		}
		context, ok := r.vm.FindContext(name)
		if !ok {
			return Fault, fmt.Errorf("%w: %s", vmerrors.ErrContextNotFound, name)
		}
		*dst = NewObject(context)

	case SWITCH:
		src, err := r.reg()
		if err != nil {
			return Fault, err
		}
		obj, err := src.AsObject()
		if err != nil {
			return Fault, err
		}
		context, ok := obj.(ExecutionContext)
		if !ok {
			return Fault, fmt.Errorf("%w: register holds %T", vmerrors.ErrTypeMismatch, obj)
		}

		depth := r.vm.FrameCount()
		state := r.vm.SwitchContext(context, r.ip)
		switch state {
		case Halt, Break:
			for r.vm.FrameCount() > depth {
				r.vm.PopFrame()
			}
		case Fault:
			return Fault, nil
		default:
			return Fault, fmt.Errorf("context %s returned %s", context.Name(), state)
		}
	}

	return Running, nil
}

func decodeLiteral(typ VMType, data []byte) (VMObject, error) {
	switch typ {
	case TypeBytes:
		return NewBytes(data), nil
	case TypeString:
		return NewString(string(data)), nil
	case TypeNumber:
		n := bytesToNumber(data)
		if err := checkNumber(n); err != nil {
			return VMObject{}, err
		}
		return VMObject{Type: TypeNumber, Data: n}, nil
	case TypeBool:
		return NewBool(len(data) > 0 && data[0] != 0), nil
	}
	return VMObject{}, fmt.Errorf("%w: cannot load %s literal", vmerrors.ErrTypeMismatch, typ)
}

func numbers(a, b *VMObject) (*big.Int, *big.Int, error) {
	x, err := a.AsNumber()
	if err != nil {
		return nil, nil, err
	}
	y, err := b.AsNumber()
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func arithmetic(opcode Opcode, x, y *big.Int) (*big.Int, error) {
	result := new(big.Int)
	switch opcode {
	case ADD:
		result.Add(x, y)
	case SUB:
		result.Sub(x, y)
	case MUL:
		if x.BitLen()+y.BitLen() > MaxNumberBits+1 {
			return nil, fmt.Errorf("%w: product of %d and %d bit numbers", vmerrors.ErrInvalidOperand, x.BitLen(), y.BitLen())
		}
		result.Mul(x, y)
	case DIV, MOD:
		if y.Sign() == 0 {
			return nil, vmerrors.ErrDivisionByZero
		}
		if opcode == DIV {
			result.Quo(x, y)
		} else {
			result.Rem(x, y)
		}
	case SHL, SHR:
		if y.Sign() < 0 || y.Cmp(big.NewInt(maxShift)) > 0 {
			return nil, fmt.Errorf("%w: shift %s", vmerrors.ErrInvalidOperand, y)
		}
		if opcode == SHL {
			result.Lsh(x, uint(y.Uint64()))
		} else {
			result.Rsh(x, uint(y.Uint64()))
		}
	case MIN:
		if x.Cmp(y) <= 0 {
			result.Set(x)
		} else {
			result.Set(y)
		}
	case MAX:
		if x.Cmp(y) >= 0 {
			result.Set(x)
		} else {
			result.Set(y)
		}
	}
	if err := checkNumber(result); err != nil {
		return nil, err
	}
	return result, nil
}

func sliceOp(opcode Opcode, src, dst *VMObject, n int) error {
	if src.Type == TypeString {
		s := src.Data.(string)
		if n > len(s) {
			return fmt.Errorf("%w: length %d exceeds %d", vmerrors.ErrInvalidOperand, n, len(s))
		}
		if opcode == LEFT {
			*dst = NewString(s[:n])
		} else {
			*dst = NewString(s[len(s)-n:])
		}
		return nil
	}

	b, err := src.AsBytes()
	if err != nil {
		return err
	}
	if n > len(b) {
		return fmt.Errorf("%w: length %d exceeds %d", vmerrors.ErrInvalidOperand, n, len(b))
	}
	if opcode == LEFT {
		*dst = NewBytes(b[:n])
	} else {
		*dst = NewBytes(b[len(b)-n:])
	}
	return nil
}
