package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wablast/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q): expected nil store", driver)
		}
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver must error")
	}
}

func TestFileStoreSendMarks(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	key := SendMarkKey("weekly", "r1", "628123")
	until := time.Now().Add(time.Hour)
	if err := st.PutSendMark(ctx, key, until); err != nil {
		t.Fatalf("PutSendMark: %v", err)
	}
	got, ok, err := st.GetSendMark(ctx, key)
	if err != nil || !ok {
		t.Fatalf("GetSendMark: ok=%v err=%v", ok, err)
	}
	if got.UnixMilli() != until.UnixMilli() {
		t.Fatalf("mark time mismatch: %v vs %v", got, until)
	}

	// Expired marks read as absent.
	if err := st.PutSendMark(ctx, "old", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("PutSendMark: %v", err)
	}
	if _, ok, _ := st.GetSendMark(ctx, "old"); ok {
		t.Fatal("expired mark must not be returned")
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Marks survive reopen via the journal.
	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	if _, ok, _ := st2.GetSendMark(ctx, key); !ok {
		t.Fatal("mark lost across reopen")
	}
}

func TestFileStoreAppendDelivery(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	rec := DeliveryRecord{
		BatchID:     "b1",
		RecipientID: "r1",
		Phone:       "628123",
		Status:      "sent",
		Processed:   1,
		Total:       3,
	}
	if err := st.AppendDelivery(ctx, rec); err != nil {
		t.Fatalf("AppendDelivery: %v", err)
	}
	rec.Status = "failed"
	rec.Error = "boom"
	rec.Processed = 2
	if err := st.AppendDelivery(ctx, rec); err != nil {
		t.Fatalf("AppendDelivery: %v", err)
	}
}
