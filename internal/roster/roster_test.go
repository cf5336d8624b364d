package roster

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeRoster(t, `
recipients:
  - id: s1
    name: Ana
    phone: "+62 812-0001"
    receipt: ./receipts/ana.pdf
    tokens:
      amount: "50"
  - id: s2
    name: Bob
    phone: "628120002"
`)
	recs, warnings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(recs))
	}
	if recs[0].ID != "s1" || recs[0].Tokens["amount"] != "50" || recs[0].Receipt != "./receipts/ana.pdf" {
		t.Fatalf("first recipient: %+v", recs[0])
	}
	if recs[1].Name != "Bob" {
		t.Fatalf("order not preserved: %+v", recs[1])
	}
}

func TestLoadDuplicateIDsWarn(t *testing.T) {
	path := writeRoster(t, `
recipients:
  - {id: dup, phone: "111"}
  - {id: dup, phone: "222"}
`)
	recs, warnings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("duplicates must be accepted, got %d", len(recs))
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
}

func TestLoadRejectsIncompleteEntries(t *testing.T) {
	for _, content := range []string{
		"recipients:\n  - {name: NoID, phone: \"111\"}\n",
		"recipients:\n  - {id: s1, name: NoPhone}\n",
	} {
		if _, _, err := Load(writeRoster(t, content)); err == nil {
			t.Fatalf("expected error for %q", content)
		}
	}
}
