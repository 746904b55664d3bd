package ledger

import (
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a Request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusUnresolved
}

// Request is a caller question escalated to a supervisor.
type Request struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	CallerID   string     `json:"caller_id"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	Answer     *string    `json:"answer"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Snapshot is the persisted form of the whole ledger.
// Pending holds every request regardless of status.
type Snapshot struct {
	Pending []Request         `json:"pending"`
	Learned map[string]string `json:"learned"`
	Counter int               `json:"counter"`
}

const idPrefix = "req_"

func formatID(n int) string {
	return idPrefix + strconv.Itoa(n)
}

// parseID returns the counter value encoded in id, or 0 if id is not of the form req_<n>.
func parseID(id string) int {
	if !strings.HasPrefix(id, idPrefix) {
		return 0
	}
	n, err := strconv.Atoi(id[len(idPrefix):])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Normalize folds a question into its learned-answer key.
func Normalize(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

func (r Request) clone() Request {
	if r.Answer != nil {
		a := *r.Answer
		r.Answer = &a
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		r.ResolvedAt = &t
	}
	return r
}
