// Package escalation decides whether a caller question can be answered on
// the spot or has to be handed to a human supervisor.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kalambet/frontdesk/internal/ledger"
	"github.com/kalambet/frontdesk/internal/notify"
)

// HoldingMessage is returned to the caller while a supervisor is consulted.
const HoldingMessage = "Let me check with my supervisor and get back to you."

// DefaultNotifyTimeout bounds one supervisor notification.
const DefaultNotifyTimeout = 10 * time.Second

// ErrEmptyQuestion is returned when the caller question is blank.
var ErrEmptyQuestion = errors.New("question must not be empty")

// Source tells where an answer came from.
type Source string

const (
	SourceKnowledge Source = "knowledge"
	SourceLearned   Source = "learned"
	SourceEscalated Source = "escalated"
)

// Answer is the outcome of handling one caller question.
type Answer struct {
	Text      string `json:"text"`
	Escalated bool   `json:"escalated"`
	RequestID string `json:"request_id,omitempty"`
	Source    Source `json:"source"`
}

// Ledger is the subset of *ledger.Ledger the policy needs.
type Ledger interface {
	LookupAnswer(question string) (string, bool)
	CreateRequest(question, callerID string) (ledger.Request, error)
}

// DefaultKnowledge returns the built-in salon facts, keyed by normalized question.
func DefaultKnowledge() map[string]string {
	return map[string]string{
		"hours":    "We are open from 10 AM to 8 PM, Monday to Saturday.",
		"services": "We offer haircuts, coloring, and styling services.",
	}
}

// lookupKnowledge matches question against the built-in table: first the
// whole normalized question, then each of its words, so "What are your
// hours?" finds the "hours" entry. Keys are tried in sorted order.
func (p *Policy) lookupKnowledge(question string) (string, bool) {
	q := ledger.Normalize(question)
	if text, ok := p.knowledge[q]; ok {
		return text, true
	}
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	}) {
		words[w] = true
	}
	for _, key := range p.keys {
		if words[key] {
			return p.knowledge[key], true
		}
	}
	return "", false
}

// Policy answers caller questions from built-in knowledge, then learned
// answers, and escalates everything else.
type Policy struct {
	knowledge     map[string]string
	keys          []string
	ledger        Ledger
	notifier      notify.Notifier
	notifyTimeout time.Duration
	logger        *slog.Logger

	inflight sync.WaitGroup
}

// Option configures a Policy.
type Option func(*Policy)

// WithNotifyTimeout bounds each background supervisor notification.
// Non-positive values keep DefaultNotifyTimeout.
func WithNotifyTimeout(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.notifyTimeout = d
		}
	}
}

// WithLogger sets the logger for escalation warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) { p.logger = logger }
}

// NewPolicy builds a Policy. Knowledge keys are normalized; a nil knowledge
// map uses DefaultKnowledge and a nil notifier only logs.
func NewPolicy(l Ledger, n notify.Notifier, knowledge map[string]string, opts ...Option) *Policy {
	if knowledge == nil {
		knowledge = DefaultKnowledge()
	}
	kb := make(map[string]string, len(knowledge))
	for q, a := range knowledge {
		kb[ledger.Normalize(q)] = a
	}
	keys := make([]string, 0, len(kb))
	for k := range kb {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if n == nil {
		n = notify.NewLogNotifier(nil)
	}
	p := &Policy{
		knowledge:     kb,
		keys:          keys,
		ledger:        l,
		notifier:      n,
		notifyTimeout: DefaultNotifyTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Answer handles one caller question. The first match wins: built-in
// knowledge, then learned answers, then escalation.
func (p *Policy) Answer(ctx context.Context, question, callerID string) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, ErrEmptyQuestion
	}

	if text, ok := p.lookupKnowledge(question); ok {
		return Answer{Text: text, Source: SourceKnowledge}, nil
	}

	if text, ok := p.ledger.LookupAnswer(question); ok {
		p.logger.Debug("learned answer reused", "caller_id", callerID, "question", question)
		return Answer{Text: text, Source: SourceLearned}, nil
	}

	req, err := p.ledger.CreateRequest(question, callerID)
	if err != nil {
		if !errors.Is(err, ledger.ErrPersistence) {
			return Answer{}, fmt.Errorf("escalating question: %w", err)
		}
		// The request exists in memory; keep the call going.
		p.logger.Warn("escalated request not persisted", "request_id", req.ID, "error", err)
	}

	n := notify.Notification{
		ID:        uuid.New().String(),
		RequestID: req.ID,
		Question:  req.Question,
		CallerID:  req.CallerID,
		CreatedAt: req.CreatedAt,
	}
	// The caller gets the holding message without waiting on the supervisor,
	// and hanging up must not cancel the alert.
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.notify(context.WithoutCancel(ctx), n)
	}()

	return Answer{
		Text:      HoldingMessage,
		Escalated: true,
		RequestID: req.ID,
		Source:    SourceEscalated,
	}, nil
}

func (p *Policy) notify(ctx context.Context, n notify.Notification) {
	ctx, cancel := context.WithTimeout(ctx, p.notifyTimeout)
	defer cancel()

	if err := p.notifier.Notify(ctx, n); err != nil {
		p.logger.Warn("supervisor notification failed", "request_id", n.RequestID, "error", err)
	}
}

// Wait blocks until every supervisor notification started by Answer has
// finished or timed out.
func (p *Policy) Wait() {
	p.inflight.Wait()
}
