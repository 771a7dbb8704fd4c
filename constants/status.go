package constants

// CustomerStatus is the canonical status for rows in customer.
type CustomerStatus string

const (
	CustomerStatusActive CustomerStatus = "ACTIVE"
)

// EntryOutcome is the terminal state of one entry after reconciliation.
type EntryOutcome string

// Stable values (written to the run report).
const (
	OutcomeUpdated     EntryOutcome = "UPDATED"      // remote update accepted, history written
	OutcomeAuditFailed EntryOutcome = "AUDIT_FAILED" // remote update accepted, history write failed
	OutcomeSkipped     EntryOutcome = "SKIPPED"      // no matching customer
	OutcomeFailed      EntryOutcome = "FAILED"       // lookup or remote update failed
)
