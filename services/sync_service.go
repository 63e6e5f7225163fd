package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/edudati/openheal-research/db"
	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/openheal"
	"github.com/edudati/openheal-research/repositories"
)

// MatchSource is the read side of OpenHeal used by the merge engine.
type MatchSource interface {
	FetchMatches(ctx context.Context, userID int64) ([]openheal.Match, error)
}

// SyncService copies OpenHeal matches of a participant into the local store.
type SyncService struct {
	conn    *sql.DB
	source  MatchSource
	matches repositories.MatchRepository
	logger  *slog.Logger
}

func NewSyncService(conn *sql.DB, source MatchSource, matches repositories.MatchRepository, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{
		conn:    conn,
		source:  source,
		matches: matches,
		logger:  logger,
	}
}

// SyncParticipant creates a local record for every OpenHeal match of p that is
// not stored yet and returns how many were created. Existing records are left
// as they are. Either every new record of the call is committed or none is.
// Concurrent calls for the same participant are safe: each external match is
// inserted at most once and the counts add up to the rows actually created.
func (s *SyncService) SyncParticipant(ctx context.Context, p *models.Participant) (int, error) {
	if p == nil {
		return 0, &SyncError{Err: ErrParticipantNotFound}
	}

	userID, err := openheal.ParseUserID(p.ID)
	if err != nil {
		return 0, &SyncError{ParticipantID: p.ID, Err: err}
	}

	external, err := s.source.FetchMatches(ctx, userID)
	if err != nil {
		return 0, &SyncError{ParticipantID: p.ID, Err: err}
	}

	created := 0
	err = db.WithTx(ctx, s.conn, func(tx *db.Tx) error {
		for _, em := range external {
			record := newMatchRecord(p.ID, em)
			ok, err := s.matches.CreateIfAbsent(ctx, tx, record)
			if err != nil {
				return fmt.Errorf("create match %q: %w", em.ID, err)
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, &SyncError{ParticipantID: p.ID, Err: err}
	}

	s.logger.Info("participant matches synced",
		slog.String("participant_id", p.ID),
		slog.Int("external", len(external)),
		slog.Int("created", created),
	)
	return created, nil
}

// newMatchRecord maps an OpenHeal match to a fresh local record. Annotation
// fields stay unset and the record starts active and used.
func newMatchRecord(participantID string, em openheal.Match) *models.MatchRecord {
	return &models.MatchRecord{
		ID:            em.ID,
		ParticipantID: participantID,
		PresetID:      em.PresetID,
		LevelID:       em.LevelID,
		ResultID:      em.ResultID,
		Date:          em.Date,
		RawDate:       em.RawDate,
		ScreenSize:    em.ScreenSize,
		IsActive:      true,
		IsUsed:        true,
	}
}
