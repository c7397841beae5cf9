package validate

import (
	"errors"
	"math/big"
	"strconv"
	"strings"
)

// IBAN checks the ISO 13616 structure and mod-97 checksum of an account number
func IBAN(code string) error {
	code = strings.ToUpper(strings.ReplaceAll(code, " ", ""))
	if len(code) < 15 || len(code) > 34 {
		return errors.New("iban length must be between 15 and 34")
	}

	for i := 0; i < len(code); i++ {
		c := code[i]
		isLetter := c >= 'A' && c <= 'Z'
		isDigit := c >= '0' && c <= '9'
		switch {
		case i < 2 && !isLetter:
			return errors.New("iban must start with country code")
		case i >= 2 && i < 4 && !isDigit:
			return errors.New("iban check digits must be numeric")
		case !isLetter && !isDigit:
			return errors.New("iban contains invalid characters")
		}
	}

	// Move country code and check digits to the end and replace letters by numbers (A=10 ... Z=35)
	rearranged := code[4:] + code[:4]
	var digits strings.Builder
	for i := 0; i < len(rearranged); i++ {
		c := rearranged[i]
		if c >= 'A' && c <= 'Z' {
			digits.WriteString(strconv.Itoa(int(c-'A') + 10))
			continue
		}
		digits.WriteByte(c)
	}

	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return errors.New("iban could not be converted to number")
	}

	switch new(big.Int).Mod(n, big.NewInt(97)).Int64() {
	case 1:
		return nil
	default:
		return errors.New("iban checksum mismatch")
	}
}
