package sessionsim

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pairwise/internal/domain/playback"
	"github.com/okian/pairwise/internal/domain/random"
	"github.com/okian/pairwise/internal/domain/session"
	"github.com/okian/pairwise/internal/domain/stimulus"
)

const (
	mediaStep    = 0.25 // seconds of media per time update
	stallShare   = 0.85 // where a stalled stream stops
	pageBase     = 800 * time.Millisecond
	pageSpread   = 3000 // ms
	decisionBase = 400 * time.Millisecond
	decideSpread = 1600 // ms
	typingBase   = 3 * time.Second
	typingSpread = 9000 // ms
)

// Subject is a simulated participant. It implements session.Presenter and is
// used by one session at a time.
type Subject struct {
	rng random.Rand
	cfg SubjectConfig

	fallbacks atomic.Int64
	retries   atomic.Int64
}

// NewSubject returns a subject drawing its behaviour from r.
func NewSubject(r random.Rand, cfg SubjectConfig) *Subject {
	if cfg.ClipSeconds <= 0 {
		cfg.ClipSeconds = DefaultClipSeconds
	}
	return &Subject{rng: r, cfg: cfg}
}

// Fallbacks returns how many comparisons were released by the fallback probe.
func (s *Subject) Fallbacks() int { return int(s.fallbacks.Load()) }

// BlankRetries returns how many blank explanations were submitted.
func (s *Subject) BlankRetries() int { return int(s.retries.Load()) }

// ShowPage reads the page for a random time.
func (s *Subject) ShowPage(ctx context.Context, _ string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return pageBase + time.Duration(s.rng.Intn(pageSpread))*time.Millisecond, nil
}

// Compare plays both clips on a simulated clock, waits for the gate and picks
// a side.
func (s *Subject) Compare(ctx context.Context, sc session.Screen, gate *playback.Gate) (session.Choice, time.Duration, error) {
	clock := newMediaClock(2, s.cfg.ClipSeconds)
	for i := range 2 {
		if s.rng.Float64() < s.cfg.StallRate {
			clock.stallAt(i, stallShare)
		}
	}

	watched := clock.play(gate)
	if gate.State() == playback.Playing {
		gate.StartFallback(clock.probe)
		if err := gate.Wait(ctx); err != nil {
			return 0, 0, err
		}
		s.fallbacks.Add(1)
	}

	rt := time.Duration(watched*float64(time.Second)) + decisionBase +
		time.Duration(s.rng.Intn(decideSpread))*time.Millisecond
	return s.choose(sc), rt, nil
}

// choose prefers the clip with the higher bevel level with probability
// Preference and picks at random otherwise.
func (s *Subject) choose(sc session.Screen) session.Choice {
	l, r := bevel(sc.Trial.Left), bevel(sc.Trial.Right)
	if l != r && s.rng.Float64() < s.cfg.Preference {
		if l > r {
			return session.ChoiceLeft
		}
		return session.ChoiceRight
	}
	if random.Coin(s.rng) {
		return session.ChoiceLeft
	}
	return session.ChoiceRight
}

// Explain types a short reason, sometimes submitting a blank answer first.
func (s *Subject) Explain(ctx context.Context, sc session.Screen, c session.Choice, prompt string) (string, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	rt := typingBase + time.Duration(s.rng.Intn(typingSpread))*time.Millisecond
	if prompt == "" && s.rng.Float64() < s.cfg.BlankRate {
		s.retries.Add(1)
		return " ", rt, nil
	}
	chosen := sc.Trial.Left
	if c == session.ChoiceRight {
		chosen = sc.Trial.Right
	}
	return fmt.Sprintf("%s (%s) had more going on", c.Object(), chosen.Name()), rt, nil
}

func bevel(it stimulus.Item) int {
	lvl := it.BevelLevel()
	if len(lvl) < 2 {
		return -1
	}
	n, err := strconv.Atoi(lvl[1:])
	if err != nil {
		return -1
	}
	return n
}

// mediaClock simulates the playback position of several clips.
type mediaClock struct {
	mu       sync.Mutex
	pos      []float64
	limit    []float64
	duration float64
}

func newMediaClock(streams int, duration float64) *mediaClock {
	c := &mediaClock{
		pos:      make([]float64, streams),
		limit:    make([]float64, streams),
		duration: duration,
	}
	for i := range c.limit {
		c.limit[i] = duration
	}
	return c
}

func (c *mediaClock) stallAt(stream int, share float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit[stream] = c.duration * share
}

func (c *mediaClock) probe(stream int) (current, duration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos[stream], c.duration
}

// play advances every clip to its limit, reporting time updates and ended
// events to the gate. It returns the media seconds watched.
func (c *mediaClock) play(g *playback.Gate) float64 {
	var elapsed float64
	for {
		moved := false
		c.mu.Lock()
		type update struct {
			stream   int
			pos      float64
			finished bool
		}
		var ups []update
		for i := range c.pos {
			if c.pos[i] >= c.limit[i] {
				continue
			}
			c.pos[i] = min(c.pos[i]+mediaStep, c.limit[i])
			moved = true
			ups = append(ups, update{i, c.pos[i], c.pos[i] >= c.duration})
		}
		c.mu.Unlock()

		if !moved {
			return elapsed
		}
		elapsed += mediaStep
		for _, u := range ups {
			g.TimeUpdate(u.stream, u.pos, c.duration)
			if u.finished {
				g.Ended(u.stream)
			}
		}
		if g.State() != playback.Playing {
			return elapsed
		}
	}
}
