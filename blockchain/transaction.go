package blockchain

import (
	"github.com/colorfulnotion/nexusvm/common"
	"github.com/colorfulnotion/nexusvm/ed25519"
	"github.com/ethereum/go-ethereum/rlp"
)

type Signature struct {
	PublicKey []byte
	Signature []byte
}

type Transaction struct {
	NexusName  string
	ChainName  string
	Script     []byte
	Expiration uint32
	Signatures []Signature
}

type unsignedTransaction struct {
	NexusName  string
	ChainName  string
	Script     []byte
	Expiration uint32
}

func NewTransaction(nexusName, chainName string, script []byte, expiration uint32) *Transaction {
	return &Transaction{
		NexusName:  nexusName,
		ChainName:  chainName,
		Script:     script,
		Expiration: expiration,
	}
}

// Hash covers everything except the signatures.
func (tx *Transaction) Hash() common.Hash {
	encoded, err := rlp.EncodeToBytes(unsignedTransaction{
		NexusName:  tx.NexusName,
		ChainName:  tx.ChainName,
		Script:     tx.Script,
		Expiration: tx.Expiration,
	})
	if err != nil {
		// strings, bytes and uint32 always encode
		panic(err)
	}
	return common.Blake2Hash(encoded)
}

func (tx *Transaction) Sign(key ed25519.PrivateKey) {
	hash := tx.Hash()
	tx.Signatures = append(tx.Signatures, Signature{
		PublicKey: key.Public().(ed25519.PublicKey),
		Signature: ed25519.Sign(key, hash.Bytes()),
	})
}

// IsSignedBy reports whether a valid signature from the key behind address is attached.
func (tx *Transaction) IsSignedBy(address common.Address) bool {
	hash := tx.Hash()
	for _, sig := range tx.Signatures {
		if common.AddressFromPublicKey(sig.PublicKey) != address {
			continue
		}
		if ed25519.Verify(sig.PublicKey, hash.Bytes(), sig.Signature) {
			return true
		}
	}
	return false
}

func (tx *Transaction) Bytes() ([]byte, error) {
	return rlp.EncodeToBytes(tx)
}

func DecodeTransaction(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := rlp.DecodeBytes(data, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}
