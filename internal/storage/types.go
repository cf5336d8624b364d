package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryRecord is one recipient's outcome within a batch.
// Keep it compact and schema-stable.
type DeliveryRecord struct {
	At          time.Time
	BatchID     string
	RecipientID string
	Name        string
	Phone       string
	Status      string
	Error       string
	Processed   int
	Total       int
}
