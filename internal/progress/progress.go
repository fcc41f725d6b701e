package progress

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"callingest/internal/logging"
)

// Stage names the step a progress event belongs to.
type Stage string

const (
	StageLoading     Stage = "loading"
	StageCompressing Stage = "compressing"
	StageUploading   Stage = "uploading"
	StageDone        Stage = "done"
	StageError       Stage = "error"
)

// Terminal reports whether the stage ends a stream.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageError
}

// Event is a single progress update. Percent is in [0, 100].
type Event struct {
	Stage   Stage
	Percent float64
	Message string
	Phase   string
	Time    time.Time
	Err     error
}

// Sink receives events synchronously on the emitting goroutine.
type Sink func(Event)

// Reporter is the single writer for one ingestion call. It clamps percent so
// the stream never regresses and emits exactly one terminal event; anything
// after the terminal event is dropped. Sinks must not call back into the
// reporter.
type Reporter struct {
	mu       sync.Mutex
	sinks    []Sink
	last     float64
	terminal bool
	logger   *slog.Logger
	sampler  *Sampler
}

// NewReporter constructs a reporter that forwards to sinks in order.
func NewReporter(sinks ...Sink) *Reporter {
	filtered := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	return &Reporter{sinks: filtered}
}

// NewStream returns a reporter whose events are delivered on an unbuffered
// channel. The channel is closed after the terminal event, so the consumer must
// keep receiving until it closes.
func NewStream(sinks ...Sink) (*Reporter, <-chan Event) {
	ch := make(chan Event)
	stream := func(ev Event) {
		ch <- ev
		if ev.Stage.Terminal() {
			close(ch)
		}
	}
	return NewReporter(append(sinks, stream)...), ch
}

// WithLogger logs events through logger, sampled to 5% buckets.
func (r *Reporter) WithLogger(logger *slog.Logger) *Reporter {
	if r == nil {
		return r
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
	if logger != nil {
		r.sampler = NewSampler(5)
	}
	return r
}

// Emit records ev. Done events are forced to 100.
func (r *Reporter) Emit(ev Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}

	ev.Percent = r.clamp(ev.Percent)
	if ev.Stage == StageDone {
		ev.Percent = 100
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.last = ev.Percent
	r.terminal = ev.Stage.Terminal()

	r.log(ev)
	for _, sink := range r.sinks {
		sink(ev)
	}
}

func (r *Reporter) clamp(percent float64) float64 {
	switch {
	case math.IsNaN(percent), percent < r.last:
		return r.last
	case percent > 100:
		return 100
	default:
		return percent
	}
}

func (r *Reporter) log(ev Event) {
	if r.logger == nil {
		return
	}
	if ev.Stage == StageError {
		r.logger.Warn("progress stopped",
			logging.String("stage", string(ev.Stage)),
			logging.Percent(ev.Percent),
			logging.Error(ev.Err),
		)
		return
	}
	if !r.sampler.Allow(ev) {
		return
	}
	r.logger.Info("progress",
		logging.String("stage", string(ev.Stage)),
		logging.String("phase", ev.Phase),
		logging.Percent(ev.Percent),
		logging.String("message", ev.Message),
	)
}

// Update emits a non-terminal event.
func (r *Reporter) Update(stage Stage, percent float64, message string) {
	r.Emit(Event{Stage: stage, Percent: percent, Message: message})
}

// Done emits the terminal success event at 100.
func (r *Reporter) Done(message string) {
	r.Emit(Event{Stage: StageDone, Percent: 100, Message: message})
}

// Fail emits the terminal error event at the current percent.
func (r *Reporter) Fail(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.Emit(Event{Stage: StageError, Percent: r.Percent(), Message: msg, Err: err})
}

// Percent returns the last emitted percent.
func (r *Reporter) Percent() float64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Finished reports whether a terminal event has been emitted.
func (r *Reporter) Finished() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}

// Sink exposes the reporter as a Sink.
func (r *Reporter) Sink() Sink {
	return r.Emit
}

// Band returns a phase-local sink that maps 0-100 into [lo, hi] of the
// reporter. A phase-level done becomes a non-terminal event at hi so the
// caller decides when the whole stream finishes; phase errors pass through
// as terminal.
func (r *Reporter) Band(lo, hi float64, phase string) Sink {
	if hi < lo {
		lo, hi = hi, lo
	}
	lastStage := Stage(phase)
	return func(ev Event) {
		ev.Phase = phase
		switch ev.Stage {
		case StageError:
			ev.Percent = 0
			r.Emit(ev)
			return
		case StageDone:
			ev.Stage = lastStage
			ev.Percent = hi
		default:
			lastStage = ev.Stage
			ev.Percent = lo + clampUnit(ev.Percent)*(hi-lo)/100
		}
		r.Emit(ev)
	}
}

func clampUnit(percent float64) float64 {
	switch {
	case math.IsNaN(percent), percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}

// Emit forwards ev to s when s is non-nil.
func (s Sink) Emit(ev Event) {
	if s != nil {
		s(ev)
	}
}
