package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"wablast/pkg/logx"
)

// Store is the minimal persistence API used by the services.
type Store interface {
	AppendDelivery(ctx context.Context, r DeliveryRecord) error
	PutSendMark(ctx context.Context, key string, until time.Time) error
	GetSendMark(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// SendMarkKey builds the dedup key for a recipient within a named
// schedule. Phone is included so a re-used recipient id with a new
// phone still gets messaged.
func SendMarkKey(schedule, recipientID, phone string) string {
	return schedule + "|" + recipientID + "|" + phone
}
