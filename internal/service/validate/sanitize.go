package validate

import (
	"strings"
	"unicode/utf8"
)

// Max length of any user supplied string after sanitizing
const DefaultMaxFieldLen = 255

var stripDenied = strings.NewReplacer(
	"<", "", ">", "", `"`, "", "'", "", "&", "",
	`\`, "", "/", "", "(", "", ")", "",
	"{", "", "}", "", "[", "", "]", "", "`", "",
)

// Sanitize strips denied characters, trims and collapses whitespace runs, and caps length in runes
func Sanitize(s string, maxLen int) string {
	s = stripDenied.Replace(s)
	s = strings.Join(strings.Fields(s), " ")

	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		s = strings.TrimSpace(string([]rune(s)[:maxLen]))
	}

	return s
}

func sanitizeMobileBanking(d *MobileBankingInput, maxLen int) {
	d.AccountHolderName = Sanitize(d.AccountHolderName, maxLen)
	d.MobileNumber = Sanitize(d.MobileNumber, maxLen)
	d.Provider = strings.ToLower(Sanitize(d.Provider, maxLen))
}

func sanitizeBankTransfer(d *BankTransferInput, maxLen int) {
	d.AccountName = Sanitize(d.AccountName, maxLen)
	d.AccountNumber = Sanitize(d.AccountNumber, maxLen)
	d.BankName = Sanitize(d.BankName, maxLen)
	d.IBAN = strings.ToUpper(strings.ReplaceAll(Sanitize(d.IBAN, maxLen), " ", ""))
	d.SWIFT = strings.ToUpper(Sanitize(d.SWIFT, maxLen))
	d.Country = strings.ToUpper(Sanitize(d.Country, maxLen))
}
