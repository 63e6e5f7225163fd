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
	"github.com/edudati/openheal-research/repositories"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	tokenTTL          = 24 * time.Hour

	ClaimUserID = "user_id"
	ClaimRole   = "role"
)

type LoginInput struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type CreateResearcherInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Institution string
	IsSuperuser bool
	StudyCodes  []string
}

type AuthService struct {
	conn        *sql.DB
	researchers repositories.ResearcherRepository
	studies     repositories.StudyRepository
	jwtSecret   []byte
	now         func() time.Time
	logger      *slog.Logger
}

func NewAuthService(
	conn *sql.DB,
	researchers repositories.ResearcherRepository,
	studies repositories.StudyRepository,
	jwtSecret string,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		conn:        conn,
		researchers: researchers,
		studies:     studies,
		jwtSecret:   []byte(jwtSecret),
		now:         time.Now,
		logger:      logger,
	}
}

// Login accepts a username or an email, ignoring case. When an email is
// shared by several accounts the one whose username equals the login wins.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*models.Researcher, string, error) {
	login := strings.TrimSpace(input.Login)
	if login == "" || input.Password == "" {
		return nil, "", ErrInvalidCredentials
	}

	candidates, err := s.researchers.FindByLogin(ctx, login)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find researcher: %w", err)
	}

	var researcher *models.Researcher
	switch len(candidates) {
	case 0:
		return nil, "", ErrInvalidCredentials
	case 1:
		researcher = candidates[0]
	default:
		for _, c := range candidates {
			if strings.EqualFold(c.Username, login) {
				researcher = c
				break
			}
		}
		if researcher == nil {
			return nil, "", ErrInvalidCredentials
		}
	}

	if !researcher.IsActive {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(researcher.PasswordHash), []byte(input.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to compare password hash: %w", err)
	}

	token, err := s.issueToken(researcher)
	if err != nil {
		return nil, "", err
	}
	researcher.PasswordHash = ""
	return researcher, token, nil
}

func (s *AuthService) issueToken(r *models.Researcher) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		ClaimUserID: r.ID,
		ClaimRole:   string(r.Role()),
		"name":      r.DisplayName(),
		"exp":       now.Add(tokenTTL).Unix(),
		"iat":       now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// CreateResearcher creates an account and links it to the given studies in
// one transaction.
func (s *AuthService) CreateResearcher(ctx context.Context, input CreateResearcherInput) (*models.Researcher, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	if input.Username == "" {
		return nil, newValidationError("username", "username is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}
	existing, err := s.researchers.FindByLogin(ctx, input.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check researcher username: %w", err)
	}
	for _, r := range existing {
		if strings.EqualFold(r.Username, input.Username) {
			return nil, ErrResearcherUsernameTaken
		}
	}
	if input.Email != "" {
		taken, err := s.researchers.EmailExists(ctx, input.Email)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrResearcherEmailTaken
		}
	}

	studyIDs := make([]string, 0, len(input.StudyCodes))
	for _, code := range input.StudyCodes {
		study, err := s.studies.GetByCode(ctx, strings.TrimSpace(code))
		if err != nil {
			if errors.Is(err, repositories.ErrStudyNotFound) {
				return nil, newValidationError("studies", fmt.Sprintf("unknown study %q", code))
			}
			return nil, fmt.Errorf("failed to load study %q: %w", code, err)
		}
		studyIDs = append(studyIDs, study.ID)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	researcher := &models.Researcher{
		ID:           uuid.NewString(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Institution:  input.Institution,
		IsSuperuser:  input.IsSuperuser,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}

	err = db.WithTx(ctx, s.conn, func(tx *db.Tx) error {
		if err := s.researchers.Create(ctx, tx, researcher); err != nil {
			return err
		}
		for _, studyID := range studyIDs {
			if err := s.researchers.AddStudy(ctx, tx, researcher.ID, studyID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrResearcherUsernameTaken) {
			return nil, ErrResearcherUsernameTaken
		}
		return nil, fmt.Errorf("failed to create researcher: %w", err)
	}

	s.logger.Info("researcher created", slog.String("researcher_id", researcher.ID), slog.Int("studies", len(studyIDs)))
	researcher.PasswordHash = ""
	return researcher, nil
}
