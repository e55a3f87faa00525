// Package playback gates the response to a comparison trial on media progress.
//
// A Gate starts in Playing. Once every stream has completed (reached the
// threshold share of its duration or ended) it moves to ReadyForResponse and
// accepts exactly one response, after which it is in ResponseGiven.
package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/okian/pairwise/pkg/logger"
	"github.com/okian/pairwise/pkg/metrics"
)

// State is the gate state.
type State int

const (
	// Playing means at least one stream is still playing. Responses are rejected.
	Playing State = iota
	// ReadyForResponse means every stream completed. Responses are accepted.
	ReadyForResponse
	// ResponseGiven is terminal.
	ResponseGiven
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case ReadyForResponse:
		return "ready_for_response"
	case ResponseGiven:
		return "response_given"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Trigger names what completed a stream.
type Trigger string

const (
	TriggerThreshold Trigger = "threshold"
	TriggerEnded     Trigger = "ended"
	TriggerFallback  Trigger = "fallback"
)

var (
	// ErrNotReady is returned by Respond while media is still playing.
	ErrNotReady = errors.New("response not accepted before playback completes")
	// ErrAlreadyResponded is returned by Respond after a response was recorded.
	ErrAlreadyResponded = errors.New("response already recorded")
)

// Probe reports the current position and duration of a stream, in seconds.
type Probe func(stream int) (current, duration float64)

const (
	defaultThreshold         = 0.9
	defaultFallbackThreshold = 0.8
	defaultFallbackDelay     = time.Second
)

// Gate tracks completion of a fixed number of media streams.
type Gate struct {
	mu        sync.Mutex
	state     State
	done      []bool
	remaining int
	ready     chan struct{}
	timer     *time.Timer

	threshold         float64
	fallbackThreshold float64
	fallbackDelay     time.Duration
	log               logger.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithThreshold sets the share of the duration that completes a stream on a time update.
func WithThreshold(share float64) Option {
	return func(g *Gate) {
		if share > 0 && share <= 1 {
			g.threshold = share
		}
	}
}

// WithFallback sets the delay and the share accepted by the one-shot fallback probe.
func WithFallback(delay time.Duration, share float64) Option {
	return func(g *Gate) {
		if delay > 0 {
			g.fallbackDelay = delay
		}
		if share > 0 && share <= 1 {
			g.fallbackThreshold = share
		}
	}
}

// WithLogger sets the gate logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGate returns a gate in Playing for the given number of streams. A gate
// with no streams is immediately ready.
func NewGate(streams int, opts ...Option) *Gate {
	if streams < 0 {
		streams = 0
	}
	g := &Gate{
		done:              make([]bool, streams),
		remaining:         streams,
		ready:             make(chan struct{}),
		threshold:         defaultThreshold,
		fallbackThreshold: defaultFallbackThreshold,
		fallbackDelay:     defaultFallbackDelay,
		log:               logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if streams == 0 {
		g.state = ReadyForResponse
		close(g.ready)
	}
	return g
}

// TimeUpdate reports playback progress for a stream. Durations that are not
// yet known (zero, negative, NaN or infinite) never complete a stream.
func (g *Gate) TimeUpdate(stream int, current, duration float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.pendingLocked(stream) || !reached(current, duration, g.threshold) {
		return
	}
	g.completeLocked(stream, TriggerThreshold)
}

// Ended reports that a stream fired its end event.
func (g *Gate) Ended(stream int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.pendingLocked(stream) {
		return
	}
	g.completeLocked(stream, TriggerEnded)
}

// StartFallback schedules the one-shot fallback probe. Calling it again
// replaces a probe that has not fired yet.
func (g *Gate) StartFallback(probe Probe) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Playing || probe == nil {
		return
	}
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(g.fallbackDelay, func() { g.runFallback(probe) })
}

func (g *Gate) runFallback(probe Probe) {
	g.mu.Lock()
	var pending []int
	for i, ok := range g.done {
		if !ok {
			pending = append(pending, i)
		}
	}
	share := g.fallbackThreshold
	g.mu.Unlock()

	type sample struct {
		stream            int
		current, duration float64
	}
	samples := make([]sample, 0, len(pending))
	for _, i := range pending {
		cur, dur := probe(i)
		samples = append(samples, sample{i, cur, dur})
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range samples {
		if g.pendingLocked(s.stream) && reached(s.current, s.duration, share) {
			g.completeLocked(s.stream, TriggerFallback)
		}
	}
}

// Respond records the single response of the trial.
func (g *Gate) Respond() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case Playing:
		return ErrNotReady
	case ResponseGiven:
		return ErrAlreadyResponded
	}
	g.state = ResponseGiven
	return nil
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Completed reports whether a stream has completed.
func (g *Gate) Completed(stream int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return stream >= 0 && stream < len(g.done) && g.done[stream]
}

// Ready is closed when the gate leaves Playing.
func (g *Gate) Ready() <-chan struct{} { return g.ready }

// Wait blocks until the gate is ready or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels a pending fallback probe.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func (g *Gate) pendingLocked(stream int) bool {
	return g.state == Playing && stream >= 0 && stream < len(g.done) && !g.done[stream]
}

func (g *Gate) completeLocked(stream int, trigger Trigger) {
	g.done[stream] = true
	g.remaining--
	metrics.RecordGateTrigger(string(trigger))
	g.log.Debug(context.Background(), "stream completed",
		logger.Int("stream", stream),
		logger.String("trigger", string(trigger)),
		logger.Int("remaining", g.remaining),
	)
	if g.remaining > 0 {
		return
	}
	g.state = ReadyForResponse
	close(g.ready)
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func reached(current, duration, share float64) bool {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return false
	}
	return current >= duration*share
}
