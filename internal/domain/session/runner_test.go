package session_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/okian/pairwise/internal/domain/experiment"
	"github.com/okian/pairwise/internal/domain/model"
	"github.com/okian/pairwise/internal/domain/playback"
	"github.com/okian/pairwise/internal/domain/random"
	"github.com/okian/pairwise/internal/domain/sequence"
	"github.com/okian/pairwise/internal/domain/session"
	"github.com/okian/pairwise/internal/domain/stimulus"
	. "github.com/smartystreets/goconvey/convey"
)

// fakePresenter completes both streams immediately and answers from a script.
type fakePresenter struct {
	mu           sync.Mutex
	choice       session.Choice
	skipPlayback bool
	blankFirst   int
	pages        []string
	prompts      []string
	screens      []session.Screen
}

func (p *fakePresenter) ShowPage(_ context.Context, page string) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages = append(p.pages, page)
	return 250 * time.Millisecond, nil
}

func (p *fakePresenter) Compare(ctx context.Context, s session.Screen, g *playback.Gate) (session.Choice, time.Duration, error) {
	p.mu.Lock()
	p.screens = append(p.screens, s)
	p.mu.Unlock()
	if !p.skipPlayback {
		g.TimeUpdate(0, 9.1, 10)
		g.Ended(1)
		if err := g.Wait(ctx); err != nil {
			return 0, 0, err
		}
	}
	return p.choice, 1200 * time.Millisecond, nil
}

func (p *fakePresenter) Explain(_ context.Context, _ session.Screen, _ session.Choice, prompt string) (string, time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	if p.blankFirst > 0 {
		p.blankFirst--
		return "   ", time.Second, nil
	}
	return "more parts", 3 * time.Second, nil
}

type memSink struct {
	mu      sync.Mutex
	fail    func(rec model.LogRecord) bool
	records []model.LogRecord
}

func (s *memSink) Log(_ context.Context, rec model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil && s.fail(rec) {
		return errors.New("sink unavailable")
	}
	s.records = append(s.records, rec)
	return nil
}

func plan(v experiment.Variant, seed int64) sequence.Sequence {
	seq, err := experiment.Plan(context.Background(), v, nil, random.New(seed), nil)
	So(err, ShouldBeNil)
	return seq
}

var subject = session.Identity{SubjectID: "p-1", StudyID: "s-1", SessionID: "x-1"}

func TestRunnerFamiliar(t *testing.T) {
	Convey("Given the familiar variant and a working sink", t, func() {
		seq := plan(experiment.Familiar, 1)
		p := &fakePresenter{choice: session.ChoiceRight}
		sink := &memSink{}
		r := session.NewRunner(experiment.Familiar, p, session.Sequential(sink), session.WithRand(random.New(2)))

		out, err := r.Run(context.Background(), seq, subject)

		Convey("Then every page and trial is shown in order", func() {
			So(err, ShouldBeNil)
			So(p.pages, ShouldResemble, []string{
				session.PageConsent, session.PageInstructions, session.PagePracticeInstructions,
				session.PageMainInstructions, session.PageGoodbye,
			})
			So(p.screens, ShouldHaveLength, 3+66)
			So(p.screens[0].Block, ShouldEqual, experiment.BlockPractice)
			So(p.screens[3].Block, ShouldEqual, experiment.BlockMain)
			So(p.screens[0].LeftURL, ShouldStartWith, "/general_assets/videos_familiarobjs/")
		})

		Convey("Then every record is delivered and the subject is redirected", func() {
			So(out.Saved(), ShouldBeTrue)
			So(out.Redirect, ShouldEqual, experiment.Familiar.CompletionURL)
			So(out.Report.Delivered, ShouldEqual, 5+3+66)
			So(sink.records, ShouldHaveLength, 5+3+66)
		})

		Convey("Then comparison records carry the choice and identity", func() {
			var cmp model.LogRecord
			for _, rec := range sink.records {
				if rec.TrialType == experiment.TrialTypeButton {
					cmp = rec
					break
				}
			}
			So(cmp.ChosenObject, ShouldEqual, model.Text("Object B"))
			So(cmp.ChosenPosition, ShouldEqual, model.Text("right"))
			So(cmp.ChosenVideo, ShouldEqual, cmp.RightVideo)
			So(cmp.Response, ShouldEqual, model.Text("1"))
			So(cmp.Video1, ShouldNotEqual, cmp.Video2)
			So(float64(*cmp.RT), ShouldEqual, 1200)
			So(*cmp.InternalNodeID, ShouldEqual, model.Number(0))

			for i, rec := range sink.records {
				So(rec.Subject, ShouldEqual, model.Text("p-1"))
				So(rec.StudyID, ShouldEqual, model.Text("s-1"))
				So(rec.SessionID, ShouldEqual, model.Text("x-1"))
				So(float64(*rec.TrialIndex), ShouldEqual, i)
			}
		})
	})
}

func TestRunnerExplanation(t *testing.T) {
	Convey("Given the open-ended variant", t, func() {
		seq := plan(experiment.FamiliarOpenEnded, 4)
		p := &fakePresenter{choice: session.ChoiceLeft, blankFirst: 2}
		sink := &memSink{}
		r := session.NewRunner(experiment.FamiliarOpenEnded, p, session.Sequential(sink))

		out, err := r.Run(context.Background(), seq, subject)

		Convey("Then blank explanations are re-prompted and never logged", func() {
			So(err, ShouldBeNil)
			So(p.prompts[0], ShouldEqual, "")
			So(p.prompts[1], ShouldEqual, session.ExplanationPrompt)
			So(p.prompts[2], ShouldEqual, session.ExplanationPrompt)
			So(p.prompts, ShouldHaveLength, 10+2)
			for _, rec := range sink.records {
				if rec.TrialType == experiment.TrialTypeExplanation {
					So(rec.Explanation, ShouldEqual, model.Text("more parts"))
				}
			}
		})

		Convey("Then each comparison is followed by its explanation", func() {
			So(out.Records, ShouldHaveLength, 2+10*2+1)
			for i, rec := range out.Records {
				if rec.TrialType == experiment.TrialTypeComparison {
					next := out.Records[i+1]
					So(next.TrialType, ShouldEqual, model.Text(experiment.TrialTypeExplanation))
					So(next.ChosenVideo, ShouldEqual, rec.ChosenVideo)
					So(next.ChosenObject, ShouldEqual, model.Text("Object A"))
				}
			}
		})
	})
}

func TestRunnerFlush(t *testing.T) {
	Convey("Given a session whose sink fails", t, func() {
		v := experiment.FamiliarOpenEnded
		v.RequireExplanation = false
		items := stimulus.Files("a.mp4", "b.mp4", "c.mp4")
		seq, err := sequence.Generate(items, v.Options(), random.New(1))
		So(err, ShouldBeNil)

		Convey("When every record fails", func() {
			sink := &memSink{fail: func(model.LogRecord) bool { return true }}
			out, err := session.NewRunner(v, &fakePresenter{}, session.Sequential(sink)).Run(context.Background(), seq, subject)

			Convey("Then the administrator alert is raised instead of redirecting", func() {
				So(err, ShouldBeNil)
				So(out.Saved(), ShouldBeFalse)
				So(out.Alert, ShouldEqual, session.AdminAlert)
				So(out.Redirect, ShouldBeEmpty)
				So(out.Report.Failed, ShouldEqual, len(out.Records))
			})
		})

		Convey("When only some records fail", func() {
			sink := &memSink{fail: func(rec model.LogRecord) bool { return rec.TrialType == experiment.TrialTypeInstruction }}
			out, err := session.NewRunner(v, &fakePresenter{}, session.Sequential(sink)).Run(context.Background(), seq, subject)

			Convey("Then the subject is still redirected", func() {
				So(err, ShouldBeNil)
				So(out.Saved(), ShouldBeTrue)
				So(out.Redirect, ShouldEqual, v.CompletionURL)
				So(out.Report.Failed, ShouldEqual, 3)
				So(out.Report.Delivered, ShouldEqual, 3)
				So(out.Report.Err, ShouldNotBeNil)
			})
		})
	})
}

func TestRunnerGate(t *testing.T) {
	Convey("Given a presenter that answers before playback completes", t, func() {
		seq, err := sequence.Generate(stimulus.Files("a", "b"), sequence.Options{}, random.New(1))
		So(err, ShouldBeNil)
		sink := &memSink{}
		p := &fakePresenter{skipPlayback: true}

		_, err = session.NewRunner(experiment.Familiar, p, session.Sequential(sink)).Run(context.Background(), seq, subject)

		Convey("Then the session stops and nothing is dispatched", func() {
			So(errors.Is(err, session.ErrPrematureResponse), ShouldBeTrue)
			So(sink.records, ShouldBeEmpty)
		})
	})

	Convey("Given a cancelled context", t, func() {
		seq, err := sequence.Generate(stimulus.Files("a", "b"), sequence.Options{}, random.New(1))
		So(err, ShouldBeNil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = session.NewRunner(experiment.Familiar, &fakePresenter{}, session.Sequential(&memSink{})).Run(ctx, seq, subject)

		Convey("Then the cancellation is returned", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestIdentityFromQuery(t *testing.T) {
	Convey("Given recruitment URL parameters", t, func() {
		q, _ := url.ParseQuery("PROLIFIC_PID=abc&STUDY_ID=st&SESSION_ID=se")
		So(session.IdentityFromQuery(q), ShouldResemble, session.Identity{SubjectID: "abc", StudyID: "st", SessionID: "se"})
	})
}

func TestChoice(t *testing.T) {
	Convey("Given the two choices", t, func() {
		So(session.ChoiceLeft.Object(), ShouldEqual, "Object A")
		So(session.ChoiceRight.Object(), ShouldEqual, "Object B")
		So(session.ChoiceLeft.Position(), ShouldEqual, "left")
		So(session.ChoiceRight.Position(), ShouldEqual, "right")
	})
}
