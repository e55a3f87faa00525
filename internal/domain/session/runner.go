package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/pairwise/internal/domain/experiment"
	"github.com/okian/pairwise/internal/domain/model"
	"github.com/okian/pairwise/internal/domain/playback"
	"github.com/okian/pairwise/internal/domain/random"
	"github.com/okian/pairwise/internal/domain/sequence"
	"github.com/okian/pairwise/pkg/logger"
)

// Runner drives one session.
type Runner struct {
	variant    experiment.Variant
	presenter  Presenter
	dispatcher Dispatcher
	rng        random.Rand
	now        func() time.Time
	gateOpts   []playback.Option
	log        logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithRand sets the randomness used to reorder blocks.
func WithRand(r random.Rand) Option {
	return func(rn *Runner) {
		if r != nil {
			rn.rng = r
		}
	}
}

// WithClock sets the clock used for time_elapsed.
func WithClock(now func() time.Time) Option {
	return func(rn *Runner) {
		if now != nil {
			rn.now = now
		}
	}
}

// WithGateOptions configures the playback gate of every comparison.
func WithGateOptions(opts ...playback.Option) Option {
	return func(rn *Runner) { rn.gateOpts = append(rn.gateOpts, opts...) }
}

// WithLogger sets the runner logger.
func WithLogger(l logger.Logger) Option {
	return func(rn *Runner) {
		if l != nil {
			rn.log = l
		}
	}
}

// NewRunner returns a Runner for the variant. The dispatcher receives every
// record of the session once the last page has been shown.
func NewRunner(v experiment.Variant, p Presenter, d Dispatcher, opts ...Option) *Runner {
	r := &Runner{
		variant:    v,
		presenter:  p,
		dispatcher: d,
		now:        time.Now,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = random.New(random.NewSeed())
	}
	return r
}

// run holds the mutable state of one Run call.
type run struct {
	*Runner
	start   time.Time
	node    int
	records []model.LogRecord
}

// Run shows the session and flushes its records. An error means the session
// did not reach the end; records are only dispatched after the last page.
func (r *Runner) Run(ctx context.Context, seq sequence.Sequence, id Identity) (Outcome, error) {
	s := &run{Runner: r, start: r.now()}
	log := r.log.Named("session")

	if err := s.page(ctx, PageConsent); err != nil {
		return Outcome{}, err
	}
	if err := s.page(ctx, PageInstructions); err != nil {
		return Outcome{}, err
	}
	if len(seq.Practice) > 0 {
		if err := s.page(ctx, PagePracticeInstructions); err != nil {
			return Outcome{}, err
		}
		if err := s.block(ctx, seq.Practice, experiment.BlockPractice); err != nil {
			return Outcome{}, err
		}
		if err := s.page(ctx, PageMainInstructions); err != nil {
			return Outcome{}, err
		}
	}
	if err := s.block(ctx, seq.Main, experiment.BlockMain); err != nil {
		return Outcome{}, err
	}
	if err := s.page(ctx, PageGoodbye); err != nil {
		return Outcome{}, err
	}

	for i := range s.records {
		s.records[i].Subject = model.Text(id.SubjectID)
		s.records[i].StudyID = model.Text(id.StudyID)
		s.records[i].SessionID = model.Text(id.SessionID)
	}

	rep := r.dispatcher.Dispatch(ctx, s.records)
	out := Outcome{Records: s.records, Report: rep}
	if len(s.records) > 0 && rep.Delivered == 0 {
		out.Alert = AdminAlert
		log.Error(ctx, "no session records were saved",
			logger.String("variant", r.variant.Name),
			logger.Int("records", len(s.records)),
			logger.Error(rep.Err),
		)
		return out, nil
	}
	out.Redirect = r.variant.CompletionURL
	if rep.Failed > 0 {
		log.Warn(ctx, "some session records were not saved",
			logger.Int("delivered", rep.Delivered),
			logger.Int("failed", rep.Failed),
			logger.Error(rep.Err),
		)
	}
	log.Info(ctx, "session complete",
		logger.String("variant", r.variant.Name),
		logger.String("subject", id.SubjectID),
		logger.Int("records", len(s.records)),
	)
	return out, nil
}

func (s *run) page(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rt, err := s.presenter.ShowPage(ctx, name)
	if err != nil {
		return fmt.Errorf("page %s: %w", name, err)
	}
	rec := s.base(experiment.TrialTypeInstruction, rt)
	rec.Stimulus = model.Text(name)
	s.records = append(s.records, rec)
	s.node++
	return nil
}

func (s *run) block(ctx context.Context, trials []sequence.Trial, block string) error {
	order := append([]sequence.Trial(nil), trials...)
	random.Shuffle(order, s.rng)

	for i, tr := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		screen := Screen{
			Trial:    tr,
			Block:    block,
			Index:    i,
			LeftURL:  s.variant.MediaURL(tr.Left),
			RightURL: s.variant.MediaURL(tr.Right),
		}
		if err := s.compare(ctx, screen); err != nil {
			return fmt.Errorf("%s trial %d: %w", block, i, err)
		}
	}
	s.node++
	return nil
}

func (s *run) compare(ctx context.Context, screen Screen) error {
	gate := playback.NewGate(2, s.gateOpts...)
	defer gate.Stop()

	choice, rt, err := s.presenter.Compare(ctx, screen, gate)
	if err != nil {
		return err
	}
	if choice != ChoiceLeft && choice != ChoiceRight {
		return fmt.Errorf("%w: %d", ErrInvalidChoice, choice)
	}
	if err := gate.Respond(); err != nil {
		return fmt.Errorf("%w: %w", ErrPrematureResponse, err)
	}

	tr := screen.Trial
	chosen := tr.Left
	if choice == ChoiceRight {
		chosen = tr.Right
	}
	rec := s.base(s.variant.ComparisonTrialType, rt)
	rec.Response = model.Text(strconv.Itoa(int(choice)))
	rec.Block = model.Text(screen.Block)
	rec.Video1 = model.Text(tr.Video1.Name())
	rec.Video2 = model.Text(tr.Video2.Name())
	rec.LeftVideo = model.Text(tr.Left.Name())
	rec.RightVideo = model.Text(tr.Right.Name())
	rec.LeftVideoName = rec.LeftVideo
	rec.RightVideoName = rec.RightVideo
	rec.ChosenVideo = model.Text(chosen.Name())
	rec.ChosenObject = model.Text(choice.Object())
	rec.ChosenPosition = model.Text(choice.Position())
	s.records = append(s.records, rec)

	if !s.variant.RequireExplanation {
		return nil
	}
	return s.explain(ctx, screen, choice, rec)
}

func (s *run) explain(ctx context.Context, screen Screen, choice Choice, cmp model.LogRecord) error {
	prompt := ""
	for {
		text, rt, err := s.presenter.Explain(ctx, screen, choice, prompt)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			if err := ctx.Err(); err != nil {
				return err
			}
			prompt = ExplanationPrompt
			continue
		}

		rec := s.base(experiment.TrialTypeExplanation, rt)
		rec.Response = "0"
		rec.Block = cmp.Block
		rec.LeftVideoName = cmp.LeftVideoName
		rec.RightVideoName = cmp.RightVideoName
		rec.ChosenVideo = cmp.ChosenVideo
		rec.ChosenObject = cmp.ChosenObject
		rec.Explanation = model.Text(text)
		s.records = append(s.records, rec)
		return nil
	}
}

func (s *run) base(trialType string, rt time.Duration) model.LogRecord {
	nodeID := fmt.Sprintf("0.0-%d.0-%d.0", s.node, len(s.records))
	return model.LogRecord{
		RT:             model.Num(float64(rt.Milliseconds())),
		TrialType:      model.Text(trialType),
		TrialIndex:     model.Num(float64(len(s.records))),
		TimeElapsed:    model.Num(float64(s.now().Sub(s.start).Milliseconds())),
		InternalNodeID: model.ParseNodeID(nodeID),
	}
}
