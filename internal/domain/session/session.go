// Package session runs one subject through an experiment variant and hands
// the resulting trial records to a dispatcher at the end.
package session

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/okian/pairwise/internal/domain/model"
	"github.com/okian/pairwise/internal/domain/playback"
	"github.com/okian/pairwise/internal/domain/sequence"
)

const (
	// ExplanationPrompt is shown when a blank explanation is submitted.
	ExplanationPrompt = "Please provide an explanation before continuing."
	// AdminAlert is shown when none of the session's records could be saved.
	AdminAlert = "There was an error saving your data. Please contact the study administrator."
)

// Pages shown around the comparison blocks.
const (
	PageConsent              = "consent"
	PageInstructions         = "instructions"
	PagePracticeInstructions = "practice_instructions"
	PageMainInstructions     = "main_instructions"
	PageGoodbye              = "goodbye"
)

var (
	// ErrPrematureResponse is returned when a presenter answers a comparison
	// before the playback gate opened.
	ErrPrematureResponse = errors.New("response given before playback completed")
	// ErrInvalidChoice is returned for a choice other than left or right.
	ErrInvalidChoice = errors.New("invalid choice")
)

// Identity is the subject identity captured from the recruitment URL.
type Identity struct {
	SubjectID string
	StudyID   string
	SessionID string
}

// IdentityFromQuery reads PROLIFIC_PID, STUDY_ID and SESSION_ID.
func IdentityFromQuery(q url.Values) Identity {
	return Identity{
		SubjectID: q.Get("PROLIFIC_PID"),
		StudyID:   q.Get("STUDY_ID"),
		SessionID: q.Get("SESSION_ID"),
	}
}

// Choice is the button pressed on a comparison trial.
type Choice int

const (
	ChoiceLeft  Choice = 0
	ChoiceRight Choice = 1
)

// Object returns the on-screen label of the chosen video.
func (c Choice) Object() string {
	if c == ChoiceLeft {
		return "Object A"
	}
	return "Object B"
}

// Position returns "left" or "right".
func (c Choice) Position() string {
	if c == ChoiceLeft {
		return "left"
	}
	return "right"
}

// Screen is one comparison as handed to the presenter.
type Screen struct {
	Trial    sequence.Trial
	Block    string
	Index    int
	LeftURL  string
	RightURL string
}

// Presenter renders pages and trials and collects the subject's answers.
// Rendering itself happens outside this package.
type Presenter interface {
	// ShowPage displays an instruction page until the subject moves on.
	ShowPage(ctx context.Context, page string) (time.Duration, error)
	// Compare plays both videos, feeding media progress into gate, and
	// returns the subject's choice once the gate is ready.
	Compare(ctx context.Context, s Screen, gate *playback.Gate) (Choice, time.Duration, error)
	// Explain asks why the choice was made. prompt is empty on the first ask
	// and carries the retry message after a blank answer.
	Explain(ctx context.Context, s Screen, c Choice, prompt string) (string, time.Duration, error)
}

// Sink stores a single trial record.
type Sink interface {
	Log(ctx context.Context, rec model.LogRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec model.LogRecord) error

// Log implements Sink.
func (f SinkFunc) Log(ctx context.Context, rec model.LogRecord) error { return f(ctx, rec) }

// Report summarizes the end-of-session delivery.
type Report struct {
	Delivered int
	Failed    int
	Err       error
}

// Total is the number of records that settled.
func (r Report) Total() int { return r.Delivered + r.Failed }

// Dispatcher delivers a batch of records and returns once each one has
// either been stored or failed.
type Dispatcher interface {
	Dispatch(ctx context.Context, recs []model.LogRecord) Report
}

// Sequential returns a Dispatcher that logs records one after another.
func Sequential(s Sink) Dispatcher { return sequential{sink: s} }

type sequential struct{ sink Sink }

func (d sequential) Dispatch(ctx context.Context, recs []model.LogRecord) Report {
	var rep Report
	var errs []error
	for _, rec := range recs {
		if err := d.sink.Log(ctx, rec); err != nil {
			rep.Failed++
			errs = append(errs, err)
			continue
		}
		rep.Delivered++
	}
	rep.Err = errors.Join(errs...)
	return rep
}

// Outcome is the result of a completed session.
type Outcome struct {
	Records []model.LogRecord
	Report  Report
	// Redirect is the completion URL, set unless the whole batch failed.
	Redirect string
	// Alert is set instead of Redirect when no record could be saved.
	Alert string
}

// Saved reports whether the subject is sent to the completion URL.
func (o Outcome) Saved() bool { return o.Alert == "" }
