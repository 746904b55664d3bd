package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestJSONFileStore_MissingFile(t *testing.T) {
	s := NewJSONFileStore(filepath.Join(t.TempDir(), "nope", "ledger.json"))
	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap != nil {
		t.Errorf("snap = %+v, want nil", snap)
	}
}

func TestJSONFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "ledger.json")
	s := NewJSONFileStore(path)

	answer := "Yes"
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	want := &Snapshot{
		Pending: []Request{
			{ID: "req_1", Question: "Refund?", CallerID: "c1", Status: StatusResolved, CreatedAt: created, Answer: &answer},
			{ID: "req_2", Question: "Parking?", CallerID: "c2", Status: StatusPending, CreatedAt: created},
		},
		Learned: map[string]string{"refund?": "Yes"},
		Counter: 3,
	}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Counter != 3 || len(got.Pending) != 2 || got.Learned["refund?"] != "Yes" {
		t.Fatalf("got = %+v", got)
	}
	if got.Pending[0].Answer == nil || *got.Pending[0].Answer != "Yes" {
		t.Error("answer lost in round trip")
	}
	if got.Pending[1].Answer != nil {
		t.Error("pending request gained an answer")
	}
	if !got.Pending[0].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.Pending[0].CreatedAt, created)
	}
}

func TestJSONFileStore_ReadsNullAnswer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	doc := `{
  "pending": [
    {"id": "req_1", "question": "Q", "caller_id": "c", "status": "pending",
     "created_at": "2025-01-01T00:00:00Z", "answer": null}
  ],
  "learned": {},
  "counter": 2
}`
	if err := writeFile(path, doc); err != nil {
		t.Fatal(err)
	}
	snap, err := NewJSONFileStore(path).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Pending) != 1 || snap.Pending[0].Answer != nil {
		t.Errorf("snap = %+v", snap)
	}
}
