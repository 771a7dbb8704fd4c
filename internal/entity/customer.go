package entity

// Customer represents the subset of a customer row the reconciliation reads.
type Customer struct {
	ID               int64  `json:"id"`
	CustomerID       int64  `json:"customer_id"`
	OwnerName        string `json:"owner_name"`
	IBAN             string `json:"iban"`
	MandateReference string `json:"mandate_reference"`
}
