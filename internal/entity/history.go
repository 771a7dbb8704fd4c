package entity

import "time"

// HistoryRecord represents one audit row written after a successful update.
type HistoryRecord struct {
	CustomerID int64     `json:"customer_id"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  string    `json:"created_by"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
}
