package blockchain

import (
	"fmt"
	"math/big"

	"github.com/colorfulnotion/nexusvm/common"
	"github.com/ethereum/go-ethereum/rlp"
)

type EventKind uint8

const (
	EventChainCreate EventKind = iota
	EventTokenCreate
	EventTokenSend
	EventTokenReceive
	EventTokenMint
	EventTokenBurn
	EventGasEscrow
	EventGasPayment
	EventContractDeploy
	EventLog
)

var eventKindNames = map[EventKind]string{
	EventChainCreate:    "ChainCreate",
	EventTokenCreate:    "TokenCreate",
	EventTokenSend:      "TokenSend",
	EventTokenReceive:   "TokenReceive",
	EventTokenMint:      "TokenMint",
	EventTokenBurn:      "TokenBurn",
	EventGasEscrow:      "GasEscrow",
	EventGasPayment:     "GasPayment",
	EventContractDeploy: "ContractDeploy",
	EventLog:            "Log",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event is an immutable log record. Data is the RLP encoding of the notified content.
type Event struct {
	Kind    EventKind
	Address common.Address
	Data    []byte
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %x", e.Kind, e.Address, e.Data)
}

// Decode unpacks Data into out, which must be a pointer to the content type that was notified.
func (e Event) Decode(out interface{}) error {
	return rlp.DecodeBytes(e.Data, out)
}

// GasEventData is the payload of GasEscrow and GasPayment events.
type GasEventData struct {
	Address common.Address
	Price   uint64
	Amount  uint64
}

type TokenEventData struct {
	Symbol       string
	Value        *big.Int
	ChainAddress common.Address
}

type LogEventData struct {
	Message string
}

func encodeEventContent(content interface{}) ([]byte, error) {
	if content == nil {
		return []byte{}, nil
	}
	return rlp.EncodeToBytes(content)
}
