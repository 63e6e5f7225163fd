package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edudati/openheal-research/db"
	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/openheal"
	"github.com/edudati/openheal-research/repositories"
)

// IdentityResolver maps an email to the OpenHeal user id.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, email string) (string, error)
}

// MatchSyncer runs the merge engine for one participant.
type MatchSyncer interface {
	SyncParticipant(ctx context.Context, p *models.Participant) (int, error)
}

type CreateParticipantInput struct {
	StudyID string                  `json:"study_id"`
	Name    string                  `json:"name"`
	Email   string                  `json:"email"`
	Group   models.ParticipantGroup `json:"group"`
}

type ListParticipantsInput struct {
	StudyCode string
	Group     models.ParticipantGroup
}

// ParticipantDetail is the participant page: the record, its matches and the
// notices produced while loading it.
type ParticipantDetail struct {
	Participant *models.Participant   `json:"participant"`
	Matches     []*models.MatchRecord `json:"matches"`
	Messages    []Notice              `json:"messages"`
}

// ParticipantService инкапсулирует бизнес-логику участников исследований.
type ParticipantService struct {
	conn         *sql.DB
	participants repositories.ParticipantRepository
	studies      repositories.StudyRepository
	matches      repositories.MatchRepository
	resolver     IdentityResolver
	syncer       MatchSyncer
	policy       *AccessPolicy
	notifier     Notifier
	logger       *slog.Logger
}

func NewParticipantService(
	conn *sql.DB,
	participants repositories.ParticipantRepository,
	studies repositories.StudyRepository,
	matches repositories.MatchRepository,
	resolver IdentityResolver,
	syncer MatchSyncer,
	policy *AccessPolicy,
	notifier Notifier,
	logger *slog.Logger,
) *ParticipantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParticipantService{
		conn:         conn,
		participants: participants,
		studies:      studies,
		matches:      matches,
		resolver:     resolver,
		syncer:       syncer,
		policy:       policy,
		notifier:     notifier,
		logger:       logger,
	}
}

func (in *CreateParticipantInput) validate() error {
	fields := make(map[string]string)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.StudyID == "" {
		fields["study_id"] = "study is required"
	}
	if in.Name == "" {
		fields["name"] = "name is required"
	} else if len(in.Name) > 150 {
		fields["name"] = "name must be at most 150 characters"
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		fields["email"] = "a valid email is required"
	}
	if !in.Group.Valid() {
		fields["group"] = "group must be control or experimental"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Create registers a participant. The id comes from OpenHeal: an email with
// no OpenHeal account blocks creation and nothing is stored. Once the insert
// has committed, the participant's matches are synced; a failed sync only
// yields an error notice and never undoes the creation.
func (s *ParticipantService) Create(ctx context.Context, principal Principal, input CreateParticipantInput) (*models.Participant, []Notice, error) {
	if err := input.validate(); err != nil {
		return nil, nil, err
	}

	study, err := s.studies.GetByID(ctx, input.StudyID)
	if err != nil {
		if errors.Is(err, repositories.ErrStudyNotFound) {
			return nil, nil, newValidationError("study_id", "study does not exist")
		}
		return nil, nil, fmt.Errorf("failed to load study: %w", err)
	}
	if err := s.policy.requireStudy(ctx, principal, study.ID); err != nil {
		return nil, nil, err
	}

	externalID, err := s.resolver.ResolveIdentity(ctx, input.Email)
	if err != nil {
		if errors.Is(err, openheal.ErrIdentityNotFound) {
			return nil, nil, newValidationError("email", "No OpenHeal user found with this email")
		}
		return nil, nil, fmt.Errorf("failed to resolve participant identity: %w", err)
	}
	if _, err := openheal.ParseUserID(externalID); err != nil {
		s.logger.Warn("OpenHeal user id is not numeric", slog.String("external_id", externalID), slog.Any("error", err))
		return nil, nil, newValidationError("email", "OpenHeal user for this email has an invalid id")
	}

	if _, err := s.participants.FindByID(ctx, externalID); err == nil {
		return nil, nil, ErrParticipantConflict
	} else if !errors.Is(err, repositories.ErrParticipantNotFound) {
		return nil, nil, fmt.Errorf("failed to check participant: %w", err)
	}

	p := &models.Participant{
		ID:        externalID,
		StudyID:   study.ID,
		Name:      input.Name,
		Email:     input.Email,
		Group:     input.Group,
		CreatedAt: time.Now().UTC(),
		Study:     study,
	}

	var notices []Notice
	err = db.WithTx(ctx, s.conn, func(tx *db.Tx) error {
		if err := s.participants.Create(ctx, tx, p); err != nil {
			return err
		}
		tx.OnCommit(func(ctx context.Context) {
			notices = append(notices, s.syncWithNotice(ctx, p, true)...)
		})
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrParticipantConflict):
			return nil, nil, ErrParticipantConflict
		case errors.Is(err, repositories.ErrParticipantEmailTaken):
			return nil, nil, ErrParticipantEmailTaken
		case errors.Is(err, repositories.ErrParticipantStudyInvalid):
			return nil, nil, newValidationError("study_id", "study does not exist")
		case errors.Is(err, repositories.ErrParticipantInvalidGroup):
			return nil, nil, newValidationError("group", "group must be control or experimental")
		}
		return nil, nil, fmt.Errorf("failed to create participant: %w", err)
	}

	s.logger.Info("participant created", slog.String("participant_id", p.ID), slog.String("study_id", p.StudyID))
	return p, notices, nil
}

// syncWithNotice runs the merge engine and turns the outcome into notices.
// With reportZero false a successful sync that created nothing stays silent.
func (s *ParticipantService) syncWithNotice(ctx context.Context, p *models.Participant, reportZero bool) []Notice {
	n, err := s.syncer.SyncParticipant(ctx, p)
	var notice Notice
	switch {
	case err != nil:
		s.logger.Error("participant match sync failed", slog.String("participant_id", p.ID), slog.Any("error", err))
		notice = syncErrorNotice(p.ID, p.StudyID, err)
	case n > 0 || reportZero:
		notice = createdNotice(p.ID, p.StudyID, n)
	default:
		return nil
	}
	broadcastNotice(s.notifier, notice)
	return []Notice{notice}
}

// Detail re-syncs the participant and returns the refreshed page. Sync
// problems are reported as notices; the detail is always returned.
func (s *ParticipantService) Detail(ctx context.Context, principal Principal, id string) (*ParticipantDetail, error) {
	p, err := s.find(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	messages := s.syncWithNotice(ctx, p, false)
	if messages == nil {
		messages = []Notice{}
	}

	matches, err := s.matches.List(ctx, repositories.MatchFilter{ParticipantID: p.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to load participant matches: %w", err)
	}

	return &ParticipantDetail{Participant: p, Matches: matches, Messages: messages}, nil
}

// find loads a participant visible to the principal; others look missing.
func (s *ParticipantService) find(ctx context.Context, principal Principal, id string) (*models.Participant, error) {
	p, err := s.participants.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to load participant: %w", err)
	}
	ok, err := s.policy.CanAccessStudy(ctx, principal, p.StudyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrParticipantNotFound
	}
	return p, nil
}

func (s *ParticipantService) List(ctx context.Context, principal Principal, input ListParticipantsInput) ([]*models.Participant, error) {
	if input.Group != "" && !input.Group.Valid() {
		return nil, newValidationError("group", "group must be control or experimental")
	}
	allowed, err := s.policy.AllowedStudyIDs(ctx, principal)
	if err != nil {
		return nil, err
	}
	participants, err := s.participants.List(ctx, repositories.ParticipantFilter{
		StudyCode: input.StudyCode,
		StudyIDs:  allowed,
		Group:     input.Group,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, nil
}

// Delete removes the participant and, through the foreign key, its matches.
func (s *ParticipantService) Delete(ctx context.Context, principal Principal, id string) error {
	p, err := s.find(ctx, principal, id)
	if err != nil {
		return err
	}
	if err := s.participants.Delete(ctx, p.ID); err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return ErrParticipantNotFound
		}
		return fmt.Errorf("failed to delete participant: %w", err)
	}
	s.logger.Info("participant deleted", slog.String("participant_id", p.ID), slog.String("study_id", p.StudyID))
	return nil
}
