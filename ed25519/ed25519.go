package ed25519

import (
	stded25519 "crypto/ed25519"
	"crypto/rand"
	"io"

	consensus "github.com/hdevalence/ed25519consensus"
	"golang.org/x/crypto/blake2b"
)

const (
	SeedSize       = stded25519.SeedSize
	PublicKeySize  = stded25519.PublicKeySize
	PrivateKeySize = stded25519.PrivateKeySize
	SignatureSize  = stded25519.SignatureSize
)

// Aliases keep type assertions against crypto/ed25519 working.
type (
	PublicKey  = stded25519.PublicKey
	PrivateKey = stded25519.PrivateKey
)

func NewKeyFromSeed(seed []byte) PrivateKey {
	return stded25519.NewKeyFromSeed(seed)
}

// KeyFromPhrase derives a deterministic key from a passphrase. Used for dev genesis owners and the
// CLI; never for real funds.
func KeyFromPhrase(phrase string) PrivateKey {
	seed := blake2b.Sum256([]byte(phrase))
	return stded25519.NewKeyFromSeed(seed[:])
}

func GenerateKey(r io.Reader) (PublicKey, PrivateKey, error) {
	if r == nil {
		r = rand.Reader
	}
	return stded25519.GenerateKey(r)
}

func Sign(privateKey PrivateKey, message []byte) []byte {
	return stded25519.Sign(privateKey, message)
}

// Verify applies ZIP-215 rules so every validator accepts the same signature set.
func Verify(publicKey PublicKey, message, sig []byte) bool {
	if len(publicKey) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return consensus.Verify(publicKey, message, sig)
}
