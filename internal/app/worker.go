package app

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

var errBusy = errors.New("too many pending actions")

// worker runs machine transitions one at a time in the order Update queued
// them. tea.Cmds run concurrently, so two quick speaker keys would otherwise
// race.
type worker struct {
	jobs chan job
}

type job struct {
	run  func() tea.Msg
	done chan tea.Msg
}

func newWorker() *worker {
	w := &worker{jobs: make(chan job, 64)}
	go w.loop()
	return w
}

func (w *worker) loop() {
	for j := range w.jobs {
		j.done <- j.run()
	}
}

// do enqueues f now and returns a command that waits for its result.
func (w *worker) do(f func() tea.Msg) tea.Cmd {
	j := job{run: f, done: make(chan tea.Msg, 1)}
	select {
	case w.jobs <- j:
	default:
		return func() tea.Msg { return ActionDoneMsg{Err: errBusy} }
	}
	return func() tea.Msg { return <-j.done }
}
