package logging

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Subscribe attaches a logrus hook that mirrors every Trace-level line onto
// the returned channel, the concrete form of spec.md §4.2's "optionally
// publish a trace stream of every statement it emits." The returned func
// detaches the hook and closes the channel; callers should invoke it when
// they stop reading, e.g. on database Close.
//
// The channel is buffered and non-blocking: a slow or absent reader drops
// trace lines rather than stalling the statement that produced them.
func (l *Logger) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 256)
	hook := &traceHook{ch: ch}
	l.entry.Logger.AddHook(hook)
	return ch, func() {
		hook.detach()
		close(ch)
	}
}

type traceHook struct {
	ch       chan string
	detached atomic.Bool
}

func (h *traceHook) Levels() []logrus.Level { return []logrus.Level{logrus.TraceLevel} }

func (h *traceHook) Fire(e *logrus.Entry) error {
	if h.detached.Load() {
		return nil
	}
	line, err := e.String()
	if err != nil {
		return err
	}
	select {
	case h.ch <- line:
	default:
	}
	return nil
}

func (h *traceHook) detach() { h.detached.Store(true) }
