package capture

import (
	"context"
	"sync"
	"time"
)

// Fake is an in-memory Device for tests. Audio is delivered with Feed.
type Fake struct {
	// Err, when set, is returned by Acquire.
	Err error
	// Mimes lists supported formats; nil supports only audio/webm.
	Mimes []string

	mu       sync.Mutex
	streams  []*FakeStream
	acquired int
}

// NewFake returns a Fake device supporting mimes.
func NewFake(mimes ...string) *Fake {
	return &Fake{Mimes: mimes}
}

func (f *Fake) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	mimes := f.Mimes
	if len(mimes) == 0 {
		mimes = []string{MimeWebM}
	}
	s := &FakeStream{mimes: mimes}
	f.streams = append(f.streams, s)
	f.acquired++
	return s, nil
}

// Acquired reports how many streams have been handed out.
func (f *Fake) Acquired() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired
}

// Last returns the most recently acquired stream, or nil.
func (f *Fake) Last() *FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

// FakeStream is the Stream handed out by Fake.
type FakeStream struct {
	mimes   []string
	windows windows

	mu      sync.Mutex
	started []string
	closed  bool
}

func (s *FakeStream) Supports(mime string) bool {
	for _, m := range s.mimes {
		if m == mime {
			return true
		}
	}
	return false
}

func (s *FakeStream) Start(mime string, _ time.Duration) (Capture, error) {
	if !s.Supports(mime) {
		return nil, ErrUnsupportedFormat
	}
	w := newWindow(0, nil, s.windows.remove)
	if err := s.windows.add(w); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.started = append(s.started, mime)
	s.mu.Unlock()
	return w, nil
}

// Feed delivers n bytes of silence as one chunk to every open capture.
func (s *FakeStream) Feed(n int) {
	s.windows.broadcast(make([]byte, n))
}

// Open reports the number of captures not yet stopped.
func (s *FakeStream) Open() int { return s.windows.count() }

// Started returns the format of every capture started, in order.
func (s *FakeStream) Started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.started...)
}

func (s *FakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.windows.shutdown()
	return nil
}

// Closed reports whether Close was called.
func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
