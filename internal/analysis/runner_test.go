package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jwulff/panelscribe/internal/backend"
	"github.com/jwulff/panelscribe/internal/interview"
	"github.com/rs/zerolog"
)

type scriptedClient struct {
	mu    sync.Mutex
	reqs  []backend.AnalyzeRequest
	fail  map[int]error
	reply func(req backend.AnalyzeRequest) *backend.AnalyzeResponse
}

func (c *scriptedClient) Analyze(_ context.Context, req backend.AnalyzeRequest) (*backend.AnalyzeResponse, error) {
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	c.mu.Unlock()
	if err := c.fail[req.QuestionIndex]; err != nil {
		return nil, err
	}
	if c.reply != nil {
		return c.reply(req), nil
	}
	return &backend.AnalyzeResponse{Success: true, Analysis: "Good discussion.", Model: "gpt-4"}, nil
}

func testSession() *interview.Session {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := interview.NewSession([]string{"Alice", "Bob"}, []string{"Teamwork?", "Conflict?", "Leadership?"}, start)
	s.Questions[0].Transcript = []interview.TranscriptEntry{
		interview.NewResolved("Alice", "We split the work.", start),
		interview.NewPending("Bob", 9, start),
	}
	s.Questions[2].Transcript = []interview.TranscriptEntry{
		interview.NewResolved("Bob", "I led the group.", start),
	}
	end := start.Add(125 * time.Second)
	s.EndTime = &end
	s.State = interview.StateEnded
	return s
}

func TestAnalyzeSkipsEmptyQuestions(t *testing.T) {
	c := &scriptedClient{}
	r := NewRunner(c, zerolog.Nop(), WithSpacing(0))

	rep, err := r.Analyze(context.Background(), testSession(), "Assess teamwork")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(c.reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(c.reqs))
	}
	if c.reqs[0].QuestionIndex != 1 || c.reqs[1].QuestionIndex != 3 {
		t.Errorf("question indexes = %d, %d, want 1, 3", c.reqs[0].QuestionIndex, c.reqs[1].QuestionIndex)
	}
	if c.reqs[0].Conversation != "[Alice]: We split the work.\n\n" {
		t.Errorf("conversation = %q", c.reqs[0].Conversation)
	}
	if !strings.HasPrefix(c.reqs[0].Prompt, "Assess teamwork") || !strings.Contains(c.reqs[0].Prompt, "Student names: Alice, Bob") {
		t.Errorf("prompt missing context: %q", c.reqs[0].Prompt)
	}
	if rep.Succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", rep.Succeeded)
	}
	if !strings.Contains(rep.Text, "## Overall Session Insights") {
		t.Error("report with two successes should include overall insights")
	}
	if !strings.Contains(rep.Text, "- **Session Duration**: 02:05") {
		t.Errorf("report missing duration:\n%s", rep.Text)
	}
}

func TestAnalyzePartialFailure(t *testing.T) {
	c := &scriptedClient{fail: map[int]error{3: errors.New("rate limited")}}
	r := NewRunner(c, zerolog.Nop(), WithSpacing(0))

	rep, err := r.Analyze(context.Background(), testSession(), "Assess")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rep.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", rep.Succeeded)
	}
	if !strings.Contains(rep.Text, "**Analysis Error**: Analysis failed: rate limited") {
		t.Errorf("report missing inline error:\n%s", rep.Text)
	}
	if strings.Contains(rep.Text, "Overall Session Insights") {
		t.Error("single success should not include overall insights")
	}
}

func TestAnalyzeAllFailed(t *testing.T) {
	c := &scriptedClient{reply: func(backend.AnalyzeRequest) *backend.AnalyzeResponse {
		return &backend.AnalyzeResponse{Success: false, Error: "Analysis failed"}
	}}
	r := NewRunner(c, zerolog.Nop(), WithSpacing(0))

	rep, err := r.Analyze(context.Background(), testSession(), "Assess")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if rep == nil || rep.Succeeded != 0 || len(rep.Results) != 2 {
		t.Errorf("report = %+v", rep)
	}
}

func TestAnalyzeNothingToAnalyze(t *testing.T) {
	s := interview.NewSession([]string{"Alice"}, []string{"Q"}, time.Now())
	r := NewRunner(&scriptedClient{}, zerolog.Nop())

	if _, err := r.Analyze(context.Background(), s, "Assess"); !errors.Is(err, ErrNothingToAnalyze) {
		t.Errorf("err = %v, want ErrNothingToAnalyze", err)
	}
	if _, err := r.Analyze(context.Background(), testSession(), "  "); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("err = %v, want ErrEmptyPrompt", err)
	}
}

func TestAnalyzeSpacing(t *testing.T) {
	c := &scriptedClient{}
	r := NewRunner(c, zerolog.Nop(), WithSpacing(30*time.Millisecond))

	start := time.Now()
	if _, err := r.Analyze(context.Background(), testSession(), "Assess"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("two requests finished in %v, want spacing >= 30ms", elapsed)
	}
}

func TestAnalyzeCancelledDuringSpacing(t *testing.T) {
	c := &scriptedClient{}
	r := NewRunner(c, zerolog.Nop(), WithSpacing(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Analyze(ctx, testSession(), "Assess"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if len(c.reqs) != 1 {
		t.Errorf("requests = %d, want 1", len(c.reqs))
	}
}
