package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

var ctx = context.Background()

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openTestLedger(t *testing.T, store Store, opts ...Option) *Ledger {
	t.Helper()
	l, err := Open(ctx, store, opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return l
}

func TestCreateRequest_AssignsIncreasingIDs(t *testing.T) {
	l := openTestLedger(t, &MemoryStore{})

	prev := 0
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		r, err := l.CreateRequest("question "+strconv.Itoa(i), "caller")
		if err != nil {
			t.Fatalf("CreateRequest: %v", err)
		}
		if seen[r.ID] {
			t.Fatalf("duplicate id %q", r.ID)
		}
		seen[r.ID] = true
		n := parseID(r.ID)
		if n <= prev {
			t.Fatalf("id %q not greater than previous %d", r.ID, prev)
		}
		prev = n
		if r.Status != StatusPending {
			t.Errorf("Status = %q, want pending", r.Status)
		}
		if r.Answer != nil {
			t.Errorf("Answer = %q, want nil", *r.Answer)
		}
	}
}

func TestCreateRequest_IDsSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")

	l1 := openTestLedger(t, NewJSONFileStore(path))
	var last int
	for i := 0; i < 3; i++ {
		r, err := l1.CreateRequest("q", "c")
		if err != nil {
			t.Fatalf("CreateRequest: %v", err)
		}
		last = parseID(r.ID)
	}
	if err := l1.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	l2 := openTestLedger(t, NewJSONFileStore(path))
	r, err := l2.CreateRequest("after restart", "c")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if got := parseID(r.ID); got <= last {
		t.Errorf("id after restart = %q, want number > %d", r.ID, last)
	}
}

func TestRestore_CounterRaisedPastExistingIDs(t *testing.T) {
	store := &MemoryStore{}
	if err := store.Save(ctx, &Snapshot{
		Pending: []Request{{ID: "req_7", Question: "q", Status: StatusPending, CreatedAt: time.Now()}},
		Counter: 2,
	}); err != nil {
		t.Fatal(err)
	}

	l := openTestLedger(t, store)
	r, err := l.CreateRequest("new", "c")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if r.ID != "req_8" {
		t.Errorf("ID = %q, want req_8", r.ID)
	}
}

func TestPendingRequests_NewestFirst(t *testing.T) {
	clock := newFakeClock()
	l := openTestLedger(t, &MemoryStore{}, WithClock(clock.Now))

	for _, q := range []string{"first", "second", "third"} {
		clock.Advance(time.Second)
		if _, err := l.CreateRequest(q, "c"); err != nil {
			t.Fatal(err)
		}
	}
	// Same timestamp as "third"; tie broken by id.
	if _, err := l.CreateRequest("fourth", "c"); err != nil {
		t.Fatal(err)
	}

	got := l.PendingRequests()
	want := []string{"fourth", "third", "second", "first"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, q := range want {
		if got[i].Question != q {
			t.Errorf("[%d] = %q, want %q", i, got[i].Question, q)
		}
	}
}

func TestResolveRequest_LearnsAnswerCaseInsensitive(t *testing.T) {
	l := openTestLedger(t, &MemoryStore{})

	r, err := l.CreateRequest("Can I get a Refund?", "c")
	if err != nil {
		t.Fatal(err)
	}
	resolved, err := l.ResolveRequest(r.ID, "A")
	if err != nil {
		t.Fatalf("ResolveRequest: %v", err)
	}
	if resolved.Status != StatusResolved || resolved.Answer == nil || *resolved.Answer != "A" {
		t.Errorf("resolved = %+v", resolved)
	}
	if resolved.ResolvedAt == nil {
		t.Error("ResolvedAt not set")
	}

	for _, q := range []string{"can i get a refund?", "CAN I GET A REFUND?", "  Can I get a Refund?  "} {
		a, ok := l.LookupAnswer(q)
		if !ok || a != "A" {
			t.Errorf("LookupAnswer(%q) = %q, %v; want A, true", q, a, ok)
		}
	}

	if len(l.PendingRequests()) != 0 {
		t.Error("resolved request still listed as pending")
	}
}

func TestResolveRequest_Errors(t *testing.T) {
	clock := newFakeClock()
	store := &MemoryStore{}
	l := openTestLedger(t, store, WithClock(clock.Now))

	resolved, _ := l.CreateRequest("resolved one", "c")
	if _, err := l.ResolveRequest(resolved.ID, "yes"); err != nil {
		t.Fatal(err)
	}
	expired, _ := l.CreateRequest("expired one", "c")
	clock.Advance(10 * time.Minute)
	if _, err := l.Sweep(clock.Now(), 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	pending, _ := l.CreateRequest("pending one", "c")

	tests := []struct {
		name    string
		id      string
		answer  string
		wantErr error
	}{
		{"unknown id", "req_999", "x", ErrNotFound},
		{"already resolved", resolved.ID, "again", ErrInvalidState},
		{"unresolved", expired.ID, "late", ErrInvalidState},
		{"empty answer", pending.ID, "   ", ErrEmptyAnswer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			savesBefore := store.Saves()
			learnedBefore := l.LearnedAnswers()

			_, err := l.ResolveRequest(tt.id, tt.answer)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if store.Saves() != savesBefore {
				t.Error("failed resolve persisted state")
			}
			if len(l.LearnedAnswers()) != len(learnedBefore) {
				t.Error("failed resolve changed learned answers")
			}
		})
	}

	var ise *InvalidStateError
	_, err := l.ResolveRequest(expired.ID, "late")
	if !errors.As(err, &ise) || ise.Status != StatusUnresolved {
		t.Errorf("err = %v, want InvalidStateError with status unresolved", err)
	}
	if got, _ := l.Request(pending.ID); got.Status != StatusPending {
		t.Errorf("pending request status = %q after failed resolve", got.Status)
	}
}

func TestSweep_ExactBoundaryAndIdempotent(t *testing.T) {
	clock := newFakeClock()
	l := openTestLedger(t, &MemoryStore{}, WithClock(clock.Now))

	old, _ := l.CreateRequest("old", "c") // T0
	clock.Advance(time.Minute)
	fresh, _ := l.CreateRequest("fresh", "c") // T0+1m
	clock.Advance(4 * time.Minute)            // T0+5m

	expired, err := l.Sweep(clock.Now(), 5*time.Minute)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != old.ID {
		t.Fatalf("expired = %+v, want only %s", expired, old.ID)
	}
	if expired[0].Status != StatusUnresolved {
		t.Errorf("Status = %q, want unresolved", expired[0].Status)
	}

	again, err := l.Sweep(clock.Now(), 5*time.Minute)
	if err != nil || len(again) != 0 {
		t.Errorf("second Sweep = %v, %v; want none", again, err)
	}

	got, _ := l.Request(fresh.ID)
	if got.Status != StatusPending {
		t.Errorf("fresh request status = %q, want pending", got.Status)
	}
}

func TestPendingRequests_SweepsOnRead(t *testing.T) {
	clock := newFakeClock()
	l := openTestLedger(t, &MemoryStore{}, WithClock(clock.Now), WithExpiry(5*time.Minute))

	r, _ := l.CreateRequest("stale", "c")
	clock.Advance(6 * time.Minute)

	if got := l.PendingRequests(); len(got) != 0 {
		t.Fatalf("PendingRequests = %+v, want empty", got)
	}
	got, _ := l.Request(r.ID)
	if got.Status != StatusUnresolved {
		t.Errorf("Status = %q, want unresolved", got.Status)
	}
	if len(l.Requests(StatusUnresolved)) != 1 {
		t.Error("Requests(unresolved) should list the swept request")
	}
}

func TestClearAll(t *testing.T) {
	l := openTestLedger(t, &MemoryStore{})

	r, _ := l.CreateRequest("q1", "c")
	l.CreateRequest("q2", "c")
	l.ResolveRequest(r.ID, "a1")

	for i := 0; i < 2; i++ {
		if err := l.ClearAll(); err != nil {
			t.Fatalf("ClearAll #%d: %v", i+1, err)
		}
		if n := len(l.PendingRequests()); n != 0 {
			t.Errorf("pending after clear = %d", n)
		}
		if n := len(l.LearnedAnswers()); n != 0 {
			t.Errorf("learned after clear = %d", n)
		}
	}
}

func TestPersistenceFailure_KeepsInMemoryState(t *testing.T) {
	store := &MemoryStore{Err: errors.New("disk full")}
	l := openTestLedger(t, store)

	r, err := l.CreateRequest("q", "c")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "create" {
		t.Errorf("err = %#v, want PersistenceError{Op: create}", err)
	}
	if r.ID == "" {
		t.Fatal("created request not returned on persistence failure")
	}
	if len(l.PendingRequests()) != 1 {
		t.Error("in-memory insert was rolled back")
	}
}

func TestOpen_LoadFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := writeFile(path, "{not json"); err != nil {
		t.Fatal(err)
	}
	_, err := Open(ctx, NewJSONFileStore(path))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
}

func TestConcurrentCreate_UniqueIDs(t *testing.T) {
	l := openTestLedger(t, &MemoryStore{})

	const n = 50
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := l.CreateRequest("q", "c")
			if err != nil {
				t.Error(err)
				return
			}
			ids <- r.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("got %d ids, want %d", len(seen), n)
	}
}

func TestEndToEnd_RefundLearned(t *testing.T) {
	l := openTestLedger(t, &MemoryStore{})

	if _, ok := l.LookupAnswer("Can I get a refund?"); ok {
		t.Fatal("unexpected learned answer before resolve")
	}
	r, _ := l.CreateRequest("Can I get a refund?", "caller-1")
	if _, err := l.ResolveRequest(r.ID, "Yes, within 30 days."); err != nil {
		t.Fatal(err)
	}
	a, ok := l.LookupAnswer("CAN I GET A REFUND?")
	if !ok || a != "Yes, within 30 days." {
		t.Errorf("LookupAnswer = %q, %v", a, ok)
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusResolved, true},
		{StatusUnresolved, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
