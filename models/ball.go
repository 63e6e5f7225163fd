package models

import "time"

// BallEvent is one throw inside a match.
type BallEvent struct {
	ID           string     `json:"id" db:"id"`
	MatchID      string     `json:"match_id" db:"match_id"`
	Direction    *int       `json:"direction,omitempty" db:"direction"`
	DestroyTime  *time.Time `json:"destroy_time,omitempty" db:"destroy_time"`
	LaunchTime   *time.Time `json:"launch_time,omitempty" db:"launch_time"`
	HitTime      *time.Time `json:"hit_time,omitempty" db:"hit_time"`
	MatureTime   *time.Time `json:"mature_time,omitempty" db:"mature_time"`
	Size         *float64   `json:"size,omitempty" db:"size"`
	Speed        *float64   `json:"speed,omitempty" db:"speed"`
	LaunchCoordX *float64   `json:"launch_coord_x,omitempty" db:"launch_coord_x"`
	LaunchCoordY *float64   `json:"launch_coord_y,omitempty" db:"launch_coord_y"`
	HitCoordX    *float64   `json:"hit_coord_x,omitempty" db:"hit_coord_x"`
	HitCoordY    *float64   `json:"hit_coord_y,omitempty" db:"hit_coord_y"`
}
