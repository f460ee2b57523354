package session

import (
	"github.com/jwulff/panelscribe/internal/interview"
	"github.com/jwulff/panelscribe/internal/reconcile"
)

// ledger applies reconciler writes to the machine's session. Every write is
// addressed by question id and generation, never by the current index.
type ledger struct{ m *Machine }

// target resolves t to its question. Caller holds m.mu.
func (l ledger) target(t reconcile.Target) (*interview.Question, bool) {
	m := l.m
	if m.sess == nil || t.Generation != m.gen {
		return nil, false
	}
	q, _ := m.sess.QuestionByID(t.QuestionID)
	if q == nil {
		m.log.Warn().Str("question_id", t.QuestionID).Msg("write for unknown question")
		return nil, false
	}
	return q, true
}

func (l ledger) AddPending(t reconcile.Target, ticket uint64) bool {
	m := l.m
	m.mu.Lock()
	q, ok := l.target(t)
	if !ok {
		m.mu.Unlock()
		return false
	}
	entries := q.Transcript[:0:0]
	for _, e := range q.Transcript {
		if e.IsPending() && e.Speaker == t.Speaker {
			continue
		}
		entries = append(entries, e)
	}
	q.Transcript = append(entries, interview.NewPending(t.Speaker, ticket, m.now()))
	current := m.sess.Current() == q
	m.mu.Unlock()

	m.obs.Notify(Event{Kind: EventTranscript, QuestionID: t.QuestionID, Current: current})
	return true
}

func (l ledger) Resolve(t reconcile.Target, ticket uint64, text string) bool {
	m := l.m
	m.mu.Lock()
	q, ok := l.target(t)
	if !ok {
		m.mu.Unlock()
		return false
	}
	entry := interview.NewResolved(t.Speaker, text, m.now())
	replaced := false
	for i, e := range q.Transcript {
		if e.IsPending() && e.Ticket == ticket {
			q.Transcript[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		q.Transcript = append(q.Transcript, entry)
	}
	current := m.sess.Current() == q
	m.mu.Unlock()

	m.obs.Notify(Event{Kind: EventTranscript, QuestionID: t.QuestionID, Current: current})
	return true
}

func (l ledger) Drop(t reconcile.Target, ticket uint64) {
	m := l.m
	m.mu.Lock()
	q, ok := l.target(t)
	if !ok {
		m.mu.Unlock()
		return
	}
	n := len(q.Transcript)
	entries := q.Transcript[:0:0]
	for _, e := range q.Transcript {
		if e.IsPending() && e.Ticket == ticket {
			continue
		}
		entries = append(entries, e)
	}
	q.Transcript = entries
	changed := len(entries) != n
	current := m.sess.Current() == q
	m.mu.Unlock()

	if changed {
		m.obs.Notify(Event{Kind: EventTranscript, QuestionID: t.QuestionID, Current: current})
	}
}
