// Package analysis runs per-question LLM analysis of a finished session and
// compiles the results into one report.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwulff/panelscribe/internal/backend"
	"github.com/jwulff/panelscribe/internal/interview"
	"github.com/rs/zerolog"
)

var (
	// ErrNothingToAnalyze means no question has finalized transcript text.
	ErrNothingToAnalyze = errors.New("no transcription data available for analysis")
	// ErrAllFailed means every per-question request failed.
	ErrAllFailed = errors.New("analysis failed for every question")
	// ErrEmptyPrompt means the base prompt was blank.
	ErrEmptyPrompt = errors.New("analysis prompt is required")
)

// DefaultSpacing separates consecutive analysis requests.
const DefaultSpacing = time.Second

// Client is the subset of the backend client the runner needs.
type Client interface {
	Analyze(ctx context.Context, req backend.AnalyzeRequest) (*backend.AnalyzeResponse, error)
}

// QuestionResult is the outcome for one question.
type QuestionResult struct {
	Number     int // 1-based position in the session
	QuestionID string
	Question   string
	Analysis   string
	Err        error
}

// OK reports whether the question was analyzed.
func (r QuestionResult) OK() bool { return r.Err == nil }

// Report is the compiled session analysis.
type Report struct {
	Results   []QuestionResult
	Succeeded int
	Text      string
	Model     string
	Demo      bool
}

// Runner analyzes sessions one question at a time.
type Runner struct {
	client  Client
	spacing time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithSpacing overrides the delay between requests.
func WithSpacing(d time.Duration) Option { return func(r *Runner) { r.spacing = d } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// NewRunner returns a runner backed by client.
func NewRunner(client Client, log zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		client:  client,
		spacing: DefaultSpacing,
		log:     log.With().Str("component", "analysis").Logger(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Analyze runs every question with finalized text through the backend. The
// report is returned even when every request failed.
func (r *Runner) Analyze(ctx context.Context, s *interview.Session, prompt string) (*Report, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	var todo []int
	for i, q := range s.Questions {
		if q.HasContent() {
			todo = append(todo, i)
		}
	}
	if len(todo) == 0 {
		return nil, ErrNothingToAnalyze
	}

	report := &Report{}
	for n, i := range todo {
		if n > 0 && r.spacing > 0 {
			select {
			case <-time.After(r.spacing):
			case <-ctx.Done():
				return report, ctx.Err()
			}
		}

		q := s.Questions[i]
		res := QuestionResult{Number: i + 1, QuestionID: q.ID, Question: q.Text}

		resp, err := r.client.Analyze(ctx, backend.AnalyzeRequest{
			Prompt:        prompt + QuestionContext(q.Text, s.Students),
			Conversation:  interview.Conversation(q),
			Question:      q.Text,
			StudentNames:  s.Students,
			QuestionIndex: i + 1,
			Timestamp:     r.now(),
		})
		switch {
		case err != nil:
			res.Err = err
		case !resp.Success:
			msg := resp.Error
			if msg == "" {
				msg = "Analysis failed"
			}
			res.Err = errors.New(msg)
		default:
			res.Analysis = resp.Analysis
			report.Succeeded++
			report.Model = resp.Model
			report.Demo = report.Demo || resp.Demo
		}

		if res.Err != nil {
			r.log.Warn().Err(res.Err).Int("question", res.Number).Msg("question analysis failed")
		} else {
			r.log.Info().Int("question", res.Number).Msg("question analyzed")
		}
		report.Results = append(report.Results, res)
	}

	report.Text = Compile(s, report.Results, r.now())
	if report.Succeeded == 0 {
		return report, fmt.Errorf("%d questions: %w", len(todo), ErrAllFailed)
	}
	return report, nil
}

// QuestionContext is appended to the base prompt for each question.
func QuestionContext(question string, students []string) string {
	return fmt.Sprintf(`

**QUESTION BEING ANALYZED:**
"%s"

**Important Context:**
- This transcript comes from speech-to-text, so names/words may be imperfectly transcribed
- Student names: %s
- Use the provided names to correct any misidentified speakers or name references
- Focus specifically on this question - don't reference other questions in the session`,
		question, strings.Join(students, ", "))
}
