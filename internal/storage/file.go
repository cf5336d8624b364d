package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wablast/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.deliveries.jsonl       (append-only JSON Lines)
//   - <prefix>.marks.snapshot.json    (periodic snapshot)
//   - <prefix>.marks.journal.jsonl    (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	deliveryFile *os.File

	markSnapshotPath string
	markJournalFile  *os.File
	marks            map[string]int64 // unix milli

	markWrites int
}

type markRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

type deliveryLine struct {
	At          time.Time `json:"at"`
	BatchID     string    `json:"batch_id"`
	RecipientID string    `json:"recipient_id"`
	Name        string    `json:"name,omitempty"`
	Phone       string    `json:"phone"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Processed   int       `json:"processed"`
	Total       int       `json:"total"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	deliveryPath := prefix + ".deliveries.jsonl"
	snapPath := prefix + ".marks.snapshot.json"
	journalPath := prefix + ".marks.journal.jsonl"

	df, err := os.OpenFile(deliveryPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load marks from snapshot + journal.
	marks := map[string]int64{}
	_ = loadMarkSnapshot(snapPath, marks)
	_ = replayMarkJournal(journalPath, marks)
	pruneExpiredMarks(marks)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = df.Close()
		return nil, err
	}

	return &fileStore{
		log:              log,
		deliveryFile:     df,
		markSnapshotPath: snapPath,
		markJournalFile:  jf,
		marks:            marks,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.deliveryFile != nil {
		err1 = s.deliveryFile.Close()
		s.deliveryFile = nil
	}
	if s.markJournalFile != nil {
		err2 = s.markJournalFile.Close()
		s.markJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendDelivery(ctx context.Context, r DeliveryRecord) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveryFile == nil {
		return errors.New("delivery file closed")
	}
	line := deliveryLine{
		At:          r.At,
		BatchID:     r.BatchID,
		RecipientID: r.RecipientID,
		Name:        r.Name,
		Phone:       r.Phone,
		Status:      r.Status,
		Error:       r.Error,
		Processed:   r.Processed,
		Total:       r.Total,
	}
	return json.NewEncoder(s.deliveryFile).Encode(line)
}

func (s *fileStore) PutSendMark(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markJournalFile == nil {
		return errors.New("mark journal closed")
	}
	if s.marks == nil {
		s.marks = map[string]int64{}
	}
	s.marks[key] = ms

	if err := json.NewEncoder(s.markJournalFile).Encode(markRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.markWrites++
	if s.markWrites%1000 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("mark compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetSendMark(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.marks[key]
	if !ok {
		return time.Time{}, false, nil
	}
	if ms < time.Now().UnixMilli() {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) compactLocked() error {
	if s.marks == nil {
		return nil
	}
	pruneExpiredMarks(s.marks)

	tmp := s.markSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.marks); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.markSnapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.markJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.markJournalFile.Seek(0, io.SeekEnd)
	return err
}

func loadMarkSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayMarkJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r markRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return sc.Err()
}

func pruneExpiredMarks(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v < now {
			delete(m, k)
		}
	}
}
