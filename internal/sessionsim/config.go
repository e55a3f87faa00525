// Package sessionsim runs simulated subjects through the experiment against a
// live server: it discovers videos, plans sequences, plays every comparison
// through the playback gate and posts the session records.
package sessionsim

import "time"

// Default configuration constants.
const (
	DefaultBaseURL       = "http://localhost:3000"
	DefaultVariant       = "novel"
	DefaultSubjects      = 1
	DefaultConcurrency   = 4
	DefaultWorkers       = 4
	DefaultQueueSize     = 1024
	DefaultTimeout       = 10 * time.Second
	DefaultClipSeconds   = 6.0
	DefaultFallbackDelay = 50 * time.Millisecond
	DefaultStallRate     = 0.1
	DefaultBlankRate     = 0.2
	DefaultPreference    = 0.7
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Variant     string        // Experiment variant to run
	StudyID     string        // Study id stamped on every record
	Subjects    int           // Number of simulated sessions
	Concurrency int           // Sessions run at once
	Workers     int           // Log dispatcher workers
	QueueSize   int           // Log dispatcher queue capacity
	Seed        int64         // Base seed; 0 draws a fresh one
	ServerPlan  bool          // Fetch sequences from /api/sequence instead of planning locally
	Timeout     time.Duration // HTTP request timeout
	OutputFile  string        // Optional JSON file for the session outcomes

	Subject SubjectConfig
}

// SubjectConfig shapes the simulated subject.
type SubjectConfig struct {
	ClipSeconds   float64       // Simulated duration of every clip
	FallbackDelay time.Duration // Delay before the gate's fallback probe runs
	StallRate     float64       // Share of streams that stall short of the threshold
	BlankRate     float64       // Share of first explanations left blank
	Preference    float64       // Probability of picking the higher bevel level
}

// NewConfig returns a Config with defaults.
func NewConfig() *Config {
	return &Config{
		BaseURL:     DefaultBaseURL,
		Variant:     DefaultVariant,
		StudyID:     "simulation",
		Subjects:    DefaultSubjects,
		Concurrency: DefaultConcurrency,
		Workers:     DefaultWorkers,
		QueueSize:   DefaultQueueSize,
		Timeout:     DefaultTimeout,
		Subject: SubjectConfig{
			ClipSeconds:   DefaultClipSeconds,
			FallbackDelay: DefaultFallbackDelay,
			StallRate:     DefaultStallRate,
			BlankRate:     DefaultBlankRate,
			Preference:    DefaultPreference,
		},
	}
}

// Stats holds run statistics.
type Stats struct {
	Sessions         int
	Completed        int
	Alerts           int
	Aborted          int
	RecordsDelivered int
	RecordsFailed    int
	Comparisons      int
	FallbackTriggers int
	BlankRetries     int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
