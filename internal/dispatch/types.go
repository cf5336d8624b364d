package dispatch

import "time"

// Recipient is one entry of a batch: who to message and with what
// substitutions. Read-only within the dispatcher.
type Recipient struct {
	ID      string            `json:"id" yaml:"id"`
	Name    string            `json:"name" yaml:"name"`
	Phone   string            `json:"phone" yaml:"phone"`
	Receipt string            `json:"receipt,omitempty" yaml:"receipt,omitempty"`
	Tokens  map[string]string `json:"tokens,omitempty" yaml:"tokens,omitempty"`
}

// BatchRequest is a single-use bulk send. Recipient order defines
// delivery order.
type BatchRequest struct {
	Recipients    []Recipient
	Template      string
	AttachReceipt bool
	// Interval is the pacing delay between consecutive recipients.
	// Zero is legal and means back-to-back sends.
	Interval time.Duration
}

// Status of one recipient's delivery attempt.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// ProgressEvent reports the outcome of one recipient. Processed is the
// 1-based position in the batch; Total is the batch size and is the
// same in every event of a batch.
type ProgressEvent struct {
	RecipientID string `json:"recipient_id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
}
