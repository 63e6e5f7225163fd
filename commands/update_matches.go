package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/edudati/openheal-research/openheal"
	"github.com/edudati/openheal-research/repositories"
	"github.com/edudati/openheal-research/services"
	"github.com/spf13/cobra"
)

type updateMatchesOptions struct {
	participantID string
	studyCode     string
	dryRun        bool
	concurrency   int
}

// NewUpdateMatchesCommand creates the batch trigger of the merge engine.
func NewUpdateMatchesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &updateMatchesOptions{}

	cmd := &cobra.Command{
		Use:   "update-matches",
		Short: "Pull new OpenHeal matches for participants",
		Long: `Creates the local copy of every OpenHeal match that participants do not
have yet. Existing matches are never modified. A participant that fails is
reported and the run goes on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			source := openheal.NewSource(a.source)
			matches := repositories.NewPostgresMatchRepository(a.local)
			batch := services.NewBatchSyncService(
				repositories.NewPostgresParticipantRepository(a.local),
				services.NewSyncService(a.local, source, matches, a.logger),
				source,
				nil, // у CLI нет websocket-хаба
				a.logger,
			)
			return runUpdateMatches(cmd.Context(), cmd.OutOrStdout(), batch, opts)
		},
	}

	cmd.Flags().StringVar(&opts.participantID, "participant", "", "only this participant id")
	cmd.Flags().StringVar(&opts.studyCode, "study", "", "only participants of this study code")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "read OpenHeal but write nothing")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 1, "participants synced in parallel")

	return cmd
}

type batchRunner interface {
	Run(ctx context.Context, filter services.BatchFilter, opts services.BatchOptions) (*services.BatchReport, error)
}

func runUpdateMatches(ctx context.Context, out io.Writer, batch batchRunner, opts *updateMatchesOptions) error {
	if opts.concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1, got %d", opts.concurrency)
	}
	report, err := batch.Run(ctx,
		services.BatchFilter{ParticipantID: opts.participantID, StudyCode: opts.studyCode},
		services.BatchOptions{DryRun: opts.dryRun, Concurrency: opts.concurrency},
	)
	if err != nil {
		return err
	}
	return writeBatchReport(out, report)
}

// writeBatchReport prints one line per participant and the total.
func writeBatchReport(w io.Writer, report *services.BatchReport) error {
	for _, line := range report.Lines {
		var err error
		switch {
		case line.Err != nil:
			_, err = fmt.Fprintf(w, "%s: failed: %v\n", line.ParticipantID, line.Err)
		case line.DryRun:
			_, err = fmt.Fprintf(w, "%s: +0 (dry-run, %d external)\n", line.ParticipantID, line.External)
		default:
			_, err = fmt.Fprintf(w, "%s: +%d\n", line.ParticipantID, line.Created)
		}
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Total created: %d\n", report.TotalCreated)
	return err
}
