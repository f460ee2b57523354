// Package capture wraps the platform microphone. A Device hands out one
// Stream per interview; recorders open windowed Captures over that stream.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrPermissionDenied means the OS refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means no usable input device was found.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrUnsupportedFormat means no preferred container is supported.
	ErrUnsupportedFormat = errors.New("no supported audio format")
	// ErrClosed is returned when starting a capture on a released stream.
	ErrClosed = errors.New("stream closed")
)

// Container formats in order of preference.
const (
	MimeWAV      = "audio/wav"
	MimeMP4      = "audio/mp4"
	MimeMPEG     = "audio/mpeg"
	MimeWebMOpus = "audio/webm;codecs=opus"
	MimeWebM     = "audio/webm"
	MimeOggOpus  = "audio/ogg;codecs=opus"
)

// Preferred is the default codec preference list.
var Preferred = []string{MimeWAV, MimeMP4, MimeMPEG, MimeWebMOpus, MimeWebM, MimeOggOpus}

// Device acquires the microphone.
type Device interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an acquired microphone. Close releases the hardware.
type Stream interface {
	Supports(mime string) bool
	Start(mime string, timeslice time.Duration) (Capture, error)
	Close() error
}

// Capture is one window of audio over a Stream.
type Capture interface {
	// Chunks yields buffered audio. The channel closes after Stop flushes.
	Chunks() <-chan []byte
	// Stop requests a final flush. Safe to call more than once.
	Stop()
	// Finish wraps the concatenated chunk payload in its container.
	Finish(payload []byte) []byte
}

// Negotiate returns the first format in prefs the stream supports.
func Negotiate(s Stream, prefs []string) (string, error) {
	if len(prefs) == 0 {
		prefs = Preferred
	}
	for _, mime := range prefs {
		if s.Supports(mime) {
			return mime, nil
		}
	}
	return "", fmt.Errorf("negotiate %v: %w", prefs, ErrUnsupportedFormat)
}

// window is the Capture shared by every device: writes are split into
// chunkSize pieces (every write is one chunk when chunkSize is 0).
type window struct {
	mu        sync.Mutex
	ch        chan []byte
	buf       []byte
	chunkSize int
	stopped   bool
	dropped   int
	wrap      func([]byte) []byte
	onStop    func(*window)
}

const chunkBuffer = 1024

func newWindow(chunkSize int, wrap func([]byte) []byte, onStop func(*window)) *window {
	return &window{
		ch:        make(chan []byte, chunkBuffer),
		chunkSize: chunkSize,
		wrap:      wrap,
		onStop:    onStop,
	}
}

func (w *window) Chunks() <-chan []byte { return w.ch }

func (w *window) write(p []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || len(p) == 0 {
		return
	}
	if w.chunkSize <= 0 {
		w.send(append([]byte(nil), p...))
		return
	}
	w.buf = append(w.buf, p...)
	for len(w.buf) >= w.chunkSize {
		w.send(append([]byte(nil), w.buf[:w.chunkSize]...))
		w.buf = w.buf[w.chunkSize:]
	}
}

// send never blocks the producer; a consumer that falls chunkBuffer chunks
// behind loses audio.
func (w *window) send(c []byte) {
	select {
	case w.ch <- c:
	default:
		w.dropped += len(c)
	}
}

// Dropped reports bytes lost to a slow consumer.
func (w *window) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

func (w *window) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if len(w.buf) > 0 {
		w.send(w.buf)
		w.buf = nil
	}
	close(w.ch)
	w.mu.Unlock()

	if w.onStop != nil {
		w.onStop(w)
	}
}

func (w *window) Finish(payload []byte) []byte {
	if w.wrap == nil {
		return payload
	}
	return w.wrap(payload)
}

// windows tracks the live captures of one stream.
type windows struct {
	mu     sync.Mutex
	open   map[*window]struct{}
	closed bool
}

func (ws *windows) add(w *window) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return ErrClosed
	}
	if ws.open == nil {
		ws.open = make(map[*window]struct{})
	}
	ws.open[w] = struct{}{}
	return nil
}

func (ws *windows) remove(w *window) {
	ws.mu.Lock()
	delete(ws.open, w)
	ws.mu.Unlock()
}

func (ws *windows) broadcast(p []byte) {
	ws.mu.Lock()
	targets := make([]*window, 0, len(ws.open))
	for w := range ws.open {
		targets = append(targets, w)
	}
	ws.mu.Unlock()
	for _, w := range targets {
		w.write(p)
	}
}

// shutdown marks the set closed and stops every open window.
func (ws *windows) shutdown() {
	ws.mu.Lock()
	ws.closed = true
	targets := make([]*window, 0, len(ws.open))
	for w := range ws.open {
		targets = append(targets, w)
	}
	ws.mu.Unlock()
	for _, w := range targets {
		w.Stop()
	}
}

func (ws *windows) count() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.open)
}
