package common

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const AddressLength = 1 + HashLength

// AddressKind tags what an address was derived from.
type AddressKind byte

const (
	AddressNull   AddressKind = 0
	AddressUser   AddressKind = 1 // derived from a public key
	AddressSystem AddressKind = 2 // derived from a script or a chain name
)

type Address [AddressLength]byte

var NullAddress = Address{}

// AddressFromScript derives the address that owns a script.
func AddressFromScript(script []byte) Address {
	return newAddress(AddressSystem, Blake2Hash(script))
}

// AddressFromPublicKey derives a user address from an ed25519 public key.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	return newAddress(AddressUser, Blake2Hash(pub))
}

// AddressFromName derives a system address for a named entity such as a chain or contract.
func AddressFromName(name string) Address {
	return newAddress(AddressSystem, Blake2HashConcat([]byte("name:"), []byte(name)))
}

func newAddress(kind AddressKind, h Hash) Address {
	var a Address
	a[0] = byte(kind)
	copy(a[1:], h[:])
	return a
}

func BytesToAddress(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("invalid address length %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

func HexToAddress(s string) (Address, error) {
	b, err := FromHex(s)
	if err != nil {
		return NullAddress, err
	}
	return BytesToAddress(b)
}

func (a Address) Kind() AddressKind {
	return AddressKind(a[0])
}

func (a Address) IsNull() bool {
	return a == NullAddress
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) Hex() string {
	return hexutil.Encode(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Hex())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	addr, err := HexToAddress(hexStr)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}
