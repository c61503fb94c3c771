package vm

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"

	"github.com/colorfulnotion/nexusvm/vmerrors"
	"golang.org/x/exp/slices"
)

// VMType tags the value held by a register or stack slot.
type VMType byte

const (
	TypeNone VMType = iota
	TypeStruct
	TypeBytes
	TypeNumber
	TypeString
	TypeTimestamp
	TypeBool
	TypeObject
)

func (t VMType) String() string {
	switch t {
	case TypeNone:
		return "None"
	case TypeStruct:
		return "Struct"
	case TypeBytes:
		return "Bytes"
	case TypeNumber:
		return "Number"
	case TypeString:
		return "String"
	case TypeTimestamp:
		return "Timestamp"
	case TypeBool:
		return "Bool"
	case TypeObject:
		return "Object"
	}
	return fmt.Sprintf("Type(%d)", byte(t))
}

// VMObject is a tagged value. The zero value is the empty "none" object.
type VMObject struct {
	Type VMType
	Data interface{}
}

func NewNumber(n *big.Int) VMObject {
	return VMObject{Type: TypeNumber, Data: new(big.Int).Set(n)}
}

func NewNumberFromInt64(n int64) VMObject {
	return VMObject{Type: TypeNumber, Data: big.NewInt(n)}
}

func NewString(s string) VMObject {
	return VMObject{Type: TypeString, Data: s}
}

func NewBytes(b []byte) VMObject {
	return VMObject{Type: TypeBytes, Data: bytes.Clone(b)}
}

func NewBool(v bool) VMObject {
	return VMObject{Type: TypeBool, Data: v}
}

func NewTimestamp(unix uint32) VMObject {
	return VMObject{Type: TypeTimestamp, Data: unix}
}

// NewObject wraps a host value such as an ExecutionContext.
func NewObject(v interface{}) VMObject {
	return VMObject{Type: TypeObject, Data: v}
}

func NewStruct() VMObject {
	return VMObject{Type: TypeStruct, Data: make(map[string]VMObject)}
}

func (o VMObject) IsNone() bool {
	return o.Type == TypeNone
}

func (o VMObject) mismatch(want VMType) error {
	return fmt.Errorf("%w: want %s, have %s", vmerrors.ErrTypeMismatch, want, o.Type)
}

func (o VMObject) AsNumber() (*big.Int, error) {
	switch o.Type {
	case TypeNumber:
		return new(big.Int).Set(o.Data.(*big.Int)), nil
	case TypeTimestamp:
		return new(big.Int).SetUint64(uint64(o.Data.(uint32))), nil
	case TypeBytes:
		return bytesToNumber(o.Data.([]byte)), nil
	case TypeString:
		n, ok := new(big.Int).SetString(o.Data.(string), 10)
		if !ok {
			return nil, o.mismatch(TypeNumber)
		}
		return n, nil
	}
	return nil, o.mismatch(TypeNumber)
}

func (o VMObject) AsString() (string, error) {
	switch o.Type {
	case TypeString:
		return o.Data.(string), nil
	case TypeNumber:
		return o.Data.(*big.Int).String(), nil
	case TypeBytes:
		return string(o.Data.([]byte)), nil
	case TypeBool:
		return strconv.FormatBool(o.Data.(bool)), nil
	case TypeTimestamp:
		return strconv.FormatUint(uint64(o.Data.(uint32)), 10), nil
	}
	return "", o.mismatch(TypeString)
}

func (o VMObject) AsBytes() ([]byte, error) {
	switch o.Type {
	case TypeBytes:
		return bytes.Clone(o.Data.([]byte)), nil
	case TypeString:
		return []byte(o.Data.(string)), nil
	case TypeNumber:
		return numberToBytes(o.Data.(*big.Int)), nil
	case TypeBool:
		if o.Data.(bool) {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	}
	return nil, o.mismatch(TypeBytes)
}

func (o VMObject) AsBool() (bool, error) {
	switch o.Type {
	case TypeBool:
		return o.Data.(bool), nil
	case TypeNumber:
		return o.Data.(*big.Int).Sign() != 0, nil
	}
	return false, o.mismatch(TypeBool)
}

func (o VMObject) AsTimestamp() (uint32, error) {
	if o.Type == TypeTimestamp {
		return o.Data.(uint32), nil
	}
	return 0, o.mismatch(TypeTimestamp)
}

func (o VMObject) AsObject() (interface{}, error) {
	if o.Type == TypeObject {
		return o.Data, nil
	}
	return nil, o.mismatch(TypeObject)
}

func (o VMObject) AsStruct() (map[string]VMObject, error) {
	if o.Type == TypeStruct {
		return o.Data.(map[string]VMObject), nil
	}
	return nil, o.mismatch(TypeStruct)
}

// Copy returns a deep copy; host objects are shared.
func (o VMObject) Copy() VMObject {
	switch o.Type {
	case TypeBytes:
		return NewBytes(o.Data.([]byte))
	case TypeNumber:
		return NewNumber(o.Data.(*big.Int))
	case TypeStruct:
		src := o.Data.(map[string]VMObject)
		dst := make(map[string]VMObject, len(src))
		for k, v := range src {
			dst[k] = v.Copy()
		}
		return VMObject{Type: TypeStruct, Data: dst}
	}
	return o
}

// fieldCount is the number of fields held by o, nested structs included.
func (o VMObject) fieldCount() int {
	if o.Type != TypeStruct {
		return 0
	}
	fields := o.Data.(map[string]VMObject)
	n := len(fields)
	for _, v := range fields {
		n += v.fieldCount()
	}
	return n
}

func (o VMObject) Equal(other VMObject) bool {
	if o.Type != other.Type {
		return false
	}
	switch o.Type {
	case TypeNone:
		return true
	case TypeNumber:
		return o.Data.(*big.Int).Cmp(other.Data.(*big.Int)) == 0
	case TypeBytes:
		return bytes.Equal(o.Data.([]byte), other.Data.([]byte))
	case TypeStruct:
		a, b := o.Data.(map[string]VMObject), other.Data.(map[string]VMObject)
		if len(a) != len(b) {
			return false
		}
		for k, v := range a {
			w, ok := b[k]
			if !ok || !v.Equal(w) {
				return false
			}
		}
		return true
	}
	return o.Data == other.Data
}

func (o VMObject) String() string {
	switch o.Type {
	case TypeNone:
		return "None"
	case TypeBytes:
		return fmt.Sprintf("Bytes(0x%x)", o.Data.([]byte))
	case TypeString:
		return fmt.Sprintf("String(%q)", o.Data.(string))
	case TypeStruct:
		fields := o.Data.(map[string]VMObject)
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		var buf bytes.Buffer
		buf.WriteString("Struct{")
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			fmt.Fprintf(&buf, "%s: %s", k, fields[k])
		}
		buf.WriteString("}")
		return buf.String()
	case TypeObject:
		if named, ok := o.Data.(interface{ Name() string }); ok {
			return fmt.Sprintf("Object(%s)", named.Name())
		}
		return fmt.Sprintf("Object(%T)", o.Data)
	}
	return fmt.Sprintf("%s(%v)", o.Type, o.Data)
}

// numberToBytes encodes n as minimal little-endian two's complement.
func numberToBytes(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{0}
	}
	var be []byte
	if n.Sign() > 0 {
		be = n.Bytes()
		if be[0]&0x80 != 0 {
			be = append([]byte{0}, be...)
		}
	} else {
		k := len(new(big.Int).Neg(n).Bytes())
		limit := new(big.Int).Lsh(big.NewInt(1), uint(8*k-1))
		if new(big.Int).Neg(n).Cmp(limit) > 0 {
			k++
		}
		mod := new(big.Int).Lsh(big.NewInt(1), uint(8*k))
		be = mod.Add(mod, n).FillBytes(make([]byte, k))
	}
	le := make([]byte, len(be))
	for i := range be {
		le[i] = be[len(be)-1-i]
	}
	return le
}

func bytesToNumber(le []byte) *big.Int {
	if len(le) == 0 {
		return new(big.Int)
	}
	be := make([]byte, len(le))
	for i := range le {
		be[i] = le[len(le)-1-i]
	}
	n := new(big.Int).SetBytes(be)
	if le[len(le)-1]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(8*len(le))))
	}
	return n
}
