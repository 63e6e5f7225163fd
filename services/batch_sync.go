package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/openheal"
	"github.com/edudati/openheal-research/repositories"
	"golang.org/x/sync/errgroup"
)

type BatchFilter struct {
	ParticipantID string
	StudyCode     string
}

type BatchOptions struct {
	DryRun bool
	// Concurrency bounds how many participants are synced at once; values
	// below 1 mean 1.
	Concurrency int
}

// BatchLine is the outcome for one participant.
type BatchLine struct {
	ParticipantID string
	Created       int
	External      int
	DryRun        bool
	Err           error
}

// BatchReport lists one line per participant in listing order.
type BatchReport struct {
	Lines        []BatchLine
	TotalCreated int
	Failed       int
}

// BatchSyncService drives the merge engine over many participants.
type BatchSyncService struct {
	participants repositories.ParticipantRepository
	syncer       MatchSyncer
	source       MatchSource
	notifier     Notifier
	logger       *slog.Logger
}

func NewBatchSyncService(
	participants repositories.ParticipantRepository,
	syncer MatchSyncer,
	source MatchSource,
	notifier Notifier,
	logger *slog.Logger,
) *BatchSyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchSyncService{
		participants: participants,
		syncer:       syncer,
		source:       source,
		notifier:     notifier,
		logger:       logger,
	}
}

// Run syncs every participant matching filter. A participant that fails is
// recorded in its line and the run goes on; only a failure to list the
// participants aborts the run. In dry-run mode nothing is written: OpenHeal
// is only read to count the external matches.
func (s *BatchSyncService) Run(ctx context.Context, filter BatchFilter, opts BatchOptions) (*BatchReport, error) {
	pf := repositories.ParticipantFilter{StudyCode: filter.StudyCode}
	if filter.ParticipantID != "" {
		pf.IDs = []string{filter.ParticipantID}
	}
	participants, err := s.participants.List(ctx, pf)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	lines := make([]BatchLine, len(participants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range participants {
		i, p := i, p
		g.Go(func() error {
			if opts.DryRun {
				lines[i] = s.dryRun(gctx, p)
			} else {
				lines[i] = s.sync(gctx, p)
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	report := &BatchReport{Lines: lines}
	for _, line := range lines {
		report.TotalCreated += line.Created
		if line.Err != nil {
			report.Failed++
		}
	}
	s.logger.Info("batch match sync finished",
		slog.Int("participants", len(lines)),
		slog.Int("created", report.TotalCreated),
		slog.Int("failed", report.Failed),
		slog.Bool("dry_run", opts.DryRun),
	)
	return report, nil
}

func (s *BatchSyncService) sync(ctx context.Context, p *models.Participant) BatchLine {
	line := BatchLine{ParticipantID: p.ID}
	n, err := s.syncer.SyncParticipant(ctx, p)
	if err != nil {
		s.logger.Error("participant match sync failed", slog.String("participant_id", p.ID), slog.Any("error", err))
		line.Err = err
		broadcastNotice(s.notifier, syncErrorNotice(p.ID, p.StudyID, err))
		return line
	}
	line.Created = n
	if n > 0 {
		broadcastNotice(s.notifier, createdNotice(p.ID, p.StudyID, n))
	}
	return line
}

func (s *BatchSyncService) dryRun(ctx context.Context, p *models.Participant) BatchLine {
	line := BatchLine{ParticipantID: p.ID, DryRun: true}
	userID, err := openheal.ParseUserID(p.ID)
	if err != nil {
		line.Err = err
		return line
	}
	external, err := s.source.FetchMatches(ctx, userID)
	if err != nil {
		line.Err = err
		return line
	}
	line.External = len(external)
	return line
}
