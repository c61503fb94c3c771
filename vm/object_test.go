package vm

import (
	"math/big"
	"testing"

	"github.com/colorfulnotion/nexusvm/vmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberEncoding(t *testing.T) {
	huge, _ := new(big.Int).SetString("-340282366920938463463374607431768211457", 10)
	cases := []struct {
		n    *big.Int
		want []byte
	}{
		{big.NewInt(0), []byte{0x00}},
		{big.NewInt(1), []byte{0x01}},
		{big.NewInt(127), []byte{0x7f}},
		{big.NewInt(128), []byte{0x80, 0x00}},
		{big.NewInt(-1), []byte{0xff}},
		{big.NewInt(-128), []byte{0x80}},
		{big.NewInt(-129), []byte{0x7f, 0xff}},
		{big.NewInt(256), []byte{0x00, 0x01}},
		{huge, nil},
	}
	for _, tc := range cases {
		enc := numberToBytes(tc.n)
		if tc.want != nil {
			assert.Equal(t, tc.want, enc, "encode %s", tc.n)
		}
		assert.Zero(t, tc.n.Cmp(bytesToNumber(enc)), "round trip %s", tc.n)
	}
}

func TestObjectConversions(t *testing.T) {
	n, err := NewString("42").AsNumber()
	require.NoError(t, err)
	assert.Equal(t, int64(42), n.Int64())

	_, err = NewString("x").AsNumber()
	assert.ErrorIs(t, err, vmerrors.ErrTypeMismatch)

	b, err := NewNumberFromInt64(0).AsBool()
	require.NoError(t, err)
	assert.False(t, b)

	_, err = NewBool(true).AsStruct()
	assert.ErrorIs(t, err, vmerrors.ErrTypeMismatch)

	ts, err := NewTimestamp(1700000000).AsNumber()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts.Int64())
}

func TestObjectCopyIsDeep(t *testing.T) {
	orig := NewBytes([]byte{1, 2, 3})
	cp := orig.Copy()
	cp.Data.([]byte)[0] = 9
	assert.Equal(t, byte(1), orig.Data.([]byte)[0])

	num := NewNumberFromInt64(5)
	numCopy := num.Copy()
	numCopy.Data.(*big.Int).SetInt64(6)
	assert.True(t, num.Equal(NewNumberFromInt64(5)))

	st := NewStruct()
	st.Data.(map[string]VMObject)["a"] = NewNumberFromInt64(1)
	stCopy := st.Copy()
	stCopy.Data.(map[string]VMObject)["a"] = NewNumberFromInt64(2)
	assert.False(t, st.Equal(stCopy))
}

func TestStack(t *testing.T) {
	s := NewStack()
	_, err := s.Pop()
	assert.ErrorIs(t, err, vmerrors.ErrStackUnderflow)

	s.Push(NewNumberFromInt64(1))
	s.Push(NewString("top"))
	top, err := s.Peek()
	require.NoError(t, err)
	assert.Equal(t, NewString("top"), top)
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, NewString("top"), s.Items()[1])
}

func TestGasTable(t *testing.T) {
	expected := map[Opcode]int64{
		NOP: 0, RET: 0,
		GET: 2, PUT: 2, CALL: 2, LOAD: 2,
		EXTCALL: 3,
		CTX:     5,
		SWITCH:  10,
		ADD:     1, MOVE: 1, JMP: 1, THROW: 1,
	}
	for op, cost := range expected {
		assert.Equal(t, cost, GetGasCostForOpcode(op), op.String())
	}
	for op := Opcode(0); op < opcodeCount; op++ {
		assert.GreaterOrEqual(t, GetGasCostForOpcode(op), int64(0))
	}
}

func TestExecutionState(t *testing.T) {
	assert.False(t, Running.IsTerminal())
	assert.True(t, Halt.IsTerminal())
	assert.True(t, Fault.IsTerminal())
	assert.Equal(t, "FAULT", Fault.String())
}

func TestStructStringIsSorted(t *testing.T) {
	inner := NewStruct()
	inner.Data.(map[string]VMObject)["x"] = NewBool(true)
	obj := NewStruct()
	fields := obj.Data.(map[string]VMObject)
	fields["b"] = NewNumberFromInt64(2)
	fields["a"] = NewString("one")
	fields["c"] = inner

	assert.Equal(t, `Struct{a: String("one"), b: Number(2), c: Struct{x: Bool(true)}}`, obj.String())
	assert.Equal(t, 4, obj.fieldCount())
}
