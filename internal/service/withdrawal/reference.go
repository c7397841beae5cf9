package withdrawal

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	referencePrefix   = "TRX"
	referenceLen      = 12
	referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewTransactionReference returns "TRX" followed by 12 random characters of [A-Z0-9]
func NewTransactionReference() (string, error) {
	b := make([]byte, referenceLen)
	max := big.NewInt(int64(len(referenceAlphabet)))

	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("error while generating transaction reference. Err: %w", err)
		}
		b[i] = referenceAlphabet[n.Int64()]
	}

	return referencePrefix + string(b), nil
}
