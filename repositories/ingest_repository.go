package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/edudati/openheal-research/models"
)

var ErrIngestChunkNotFound = errors.New("ingest chunk not found")

type IngestRepository interface {
	Create(ctx context.Context, chunk *models.IngestChunk) error
	SetArchiveKey(ctx context.Context, id, key string) error
}

type postgresIngestRepository struct {
	db *sql.DB
}

func NewPostgresIngestRepository(db *sql.DB) IngestRepository {
	return &postgresIngestRepository{db: db}
}

func (r *postgresIngestRepository) Create(ctx context.Context, chunk *models.IngestChunk) error {
	query := `
		INSERT INTO ingest_chunks
			(id, user_id, roblox_user_id, roblox_user_name, race_start, race_time,
			 collisions, tracking, archive_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	collisions := string(chunk.Collisions)
	if collisions == "" {
		collisions = "[]"
	}
	tracking := string(chunk.Tracking)
	if tracking == "" {
		tracking = "[]"
	}

	_, err := r.db.ExecContext(ctx, query,
		chunk.ID,
		chunk.UserID,
		chunk.RobloxUserID,
		chunk.RobloxUserName,
		chunk.RaceStart,
		chunk.RaceTime,
		collisions,
		tracking,
		chunk.ArchiveKey,
		chunk.CreatedAt,
		chunk.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ingest chunk: %w", err)
	}
	return nil
}

func (r *postgresIngestRepository) SetArchiveKey(ctx context.Context, id, key string) error {
	query := `UPDATE ingest_chunks SET archive_key = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, key, id)
	if err != nil {
		return fmt.Errorf("failed to set archive key of ingest chunk %s: %w", id, err)
	}
	return checkAffectedRows(result, ErrIngestChunkNotFound)
}
