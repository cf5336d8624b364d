package config

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Session   SessionConfig   `json:"session"`
	Transport TransportConfig `json:"transport"`
	Blast     BlastConfig     `json:"blast"`

	// Storage is optional; omitted means no persistence.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Schedules are recurring batches run by the daemon.
	Schedules []ScheduleConfig `json:"schedules,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SessionConfig controls the simulated pairing handshake.
//
// SettlePeriod is a Go duration string (e.g. "500ms", "3s").
type SessionConfig struct {
	SettlePeriod string `json:"settle_period,omitempty"`
}

// TransportConfig selects and configures the delivery client.
//
// Kind values: "deeplink" (default), "telegram".
type TransportConfig struct {
	Kind     string          `json:"kind,omitempty"`
	Deeplink DeeplinkConfig  `json:"deeplink,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

type DeeplinkConfig struct {
	// OpenTimeout is a Go duration string. Default "10s".
	OpenTimeout string `json:"open_timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

type TelegramConfig struct {
	Token      string `json:"token"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// SendTimeout is a Go duration string. Default "30s".
	SendTimeout string `json:"send_timeout,omitempty"`
}

// BlastConfig controls the batch queue service.
//
// Defaults (when fields are omitted/zero):
//   - workers: 1 (batches run sequentially unless raised)
//   - queue_size: 64
//   - status_ttl: "1h"
type BlastConfig struct {
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
	StatusTTL string `json:"status_ttl,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./wablast_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ScheduleConfig describes one recurring batch.
//
// Spec is a cron expression (robfig/cron, descriptors like "@daily"
// and "@every 12h" included). Recipients points at a yaml roster file
// re-read on every run. Interval and DedupWindow are Go duration
// strings; a non-zero DedupWindow skips recipients already messaged by
// this schedule within the window (requires storage).
type ScheduleConfig struct {
	Name          string `json:"name"`
	Spec          string `json:"spec"`
	Recipients    string `json:"recipients"`
	Template      string `json:"template,omitempty"`
	TemplateFile  string `json:"template_file,omitempty"`
	AttachReceipt bool   `json:"attach_receipt,omitempty"`
	Interval      string `json:"interval,omitempty"`
	DedupWindow   string `json:"dedup_window,omitempty"`
}
