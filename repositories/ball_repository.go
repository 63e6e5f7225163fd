package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/edudati/openheal-research/models"
)

// BallRepository is read-only; ball events are loaded by an external process.
type BallRepository interface {
	ListByMatch(ctx context.Context, matchID string) ([]*models.BallEvent, error)
}

type postgresBallRepository struct {
	db *sql.DB
}

func NewPostgresBallRepository(db *sql.DB) BallRepository {
	return &postgresBallRepository{db: db}
}

func (r *postgresBallRepository) ListByMatch(ctx context.Context, matchID string) ([]*models.BallEvent, error) {
	query := `
		SELECT id, match_id, direction, destroy_time, launch_time, hit_time, mature_time,
		       size, speed, launch_coord_x, launch_coord_y, hit_coord_x, hit_coord_y
		FROM balls
		WHERE match_id = $1
		ORDER BY launch_time ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balls of match %q: %w", matchID, err)
	}
	defer rows.Close()

	balls := make([]*models.BallEvent, 0)
	for rows.Next() {
		b := &models.BallEvent{}
		if err := rows.Scan(
			&b.ID,
			&b.MatchID,
			&b.Direction,
			&b.DestroyTime,
			&b.LaunchTime,
			&b.HitTime,
			&b.MatureTime,
			&b.Size,
			&b.Speed,
			&b.LaunchCoordX,
			&b.LaunchCoordY,
			&b.HitCoordX,
			&b.HitCoordY,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ball row: %w", err)
		}
		balls = append(balls, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ball rows: %w", err)
	}
	return balls, nil
}
