package sessionsim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/pairwise/internal/domain/experiment"
	"github.com/okian/pairwise/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

// NewCommand returns the run-session command tree.
func NewCommand() *cobra.Command {
	cfg := NewConfig()
	var (
		verbose    bool
		logFormat  string
		runTimeout time.Duration
	)

	root := &cobra.Command{
		Use:   "run-session",
		Short: "Run simulated subjects through the pairwise experiment",
		Long: `Run simulated subjects against a running pairwise server.

Every subject plans a trial sequence, watches each comparison through the
playback gate, answers, and posts its records at the end of the session.

Examples:
  run-session run                              # One subject, novel variant
  run-session run --subjects 50 --concurrency 8
  run-session run --variant familiar_openended --blank-rate 0.5
  run-session plan --variant familiar --seed 42
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWithWriter(cmd.ErrOrStderr(), logFormat); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			if verbose {
				return logger.SetLevelString("debug")
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.BaseURL, "url", DefaultBaseURL, "Base URL of the service")
	pf.StringVar(&cfg.Variant, "variant", DefaultVariant, fmt.Sprintf("Experiment variant %v", experiment.Names()))
	pf.Int64Var(&cfg.Seed, "seed", 0, "Base seed (0 draws a fresh one)")
	pf.BoolVar(&cfg.ServerPlan, "server-plan", false, "Fetch sequences from /api/sequence")
	pf.DurationVar(&cfg.Timeout, "timeout", DefaultTimeout, "HTTP request timeout")
	pf.DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "Timeout for the whole command")
	pf.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(runCommand(cfg, &runTimeout), planCommand(cfg, &runTimeout))
	return root
}

func runCommand(cfg *Config, runTimeout *time.Duration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run simulated sessions and post their records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), *runTimeout)
			defer cancel()

			sim, err := New(cfg, logger.Get())
			if err != nil {
				return err
			}
			stats, _, err := sim.Run(ctx)
			if err != nil {
				return err
			}
			if stats.Aborted > 0 || stats.Alerts > 0 {
				return fmt.Errorf("%d of %d sessions did not save their records", stats.Aborted+stats.Alerts, stats.Sessions)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&cfg.Subjects, "subjects", "n", DefaultSubjects, "Number of simulated sessions")
	f.IntVar(&cfg.Concurrency, "concurrency", DefaultConcurrency, "Sessions run at once")
	f.IntVar(&cfg.Workers, "workers", DefaultWorkers, "Log dispatcher workers")
	f.IntVar(&cfg.QueueSize, "queue-size", DefaultQueueSize, "Log dispatcher queue capacity")
	f.StringVar(&cfg.StudyID, "study", cfg.StudyID, "Study id stamped on every record")
	f.StringVarP(&cfg.OutputFile, "output", "o", "", "Write session results to this JSON file")
	f.Float64Var(&cfg.Subject.ClipSeconds, "clip-seconds", DefaultClipSeconds, "Simulated clip duration")
	f.DurationVar(&cfg.Subject.FallbackDelay, "fallback-delay", DefaultFallbackDelay, "Delay before the playback fallback probe")
	f.Float64Var(&cfg.Subject.StallRate, "stall-rate", DefaultStallRate, "Share of streams that stall before the threshold")
	f.Float64Var(&cfg.Subject.BlankRate, "blank-rate", DefaultBlankRate, "Share of first explanations left blank")
	f.Float64Var(&cfg.Subject.Preference, "preference", DefaultPreference, "Probability of choosing the higher bevel level")
	return cmd
}

func planCommand(cfg *Config, runTimeout *time.Duration) *cobra.Command {
	var subject int
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the trial sequence a subject would see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), *runTimeout)
			defer cancel()

			sim, err := New(cfg, logger.Get())
			if err != nil {
				return err
			}
			seq, err := sim.Plan(ctx, subject)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"variant":  cfg.Variant,
				"seed":     cfg.Seed + int64(subject),
				"practice": seq.Practice,
				"main":     seq.Main,
			})
		},
	}
	cmd.Flags().IntVar(&subject, "subject", 0, "Subject index; its seed is the base seed plus the index")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
