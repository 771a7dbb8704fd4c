package entity

// Entry is one account-change record from a notification document.
// Values are trimmed at parse time and never mutated afterwards.
type Entry struct {
	MandateID  string `json:"mndtid"`
	EndToEndID string `json:"endtoendid"`
	OldIBAN    string `json:"iban_old"`
	OldBIC     string `json:"bic_old"`
	NewIBAN    string `json:"iban_new"`
	NewBIC     string `json:"bic_new"`
}
