package models

import (
	"encoding/json"
	"time"
)

type Collision struct {
	Timestamp float64 `json:"timestamp"`
	BarrierID string  `json:"barrier_id"`
}

type TrackingItem struct {
	Timestamp float64    `json:"timestamp"`
	Position  [3]float64 `json:"position"`
	Velocity  [3]float64 `json:"velocity"`
	Direction [3]float64 `json:"direction"`
	State     string     `json:"state"`
	SegmentID string     `json:"segment_id,omitempty"`
	Gravity   *float64   `json:"gravity,omitempty"`
}

// IngestChunk хранит одну загрузку телеметрии от игрового клиента.
type IngestChunk struct {
	ID             string          `json:"id" db:"id"`
	UserID         *int            `json:"user_id,omitempty" db:"user_id"`
	RobloxUserID   string          `json:"roblox_user_id" db:"roblox_user_id"`
	RobloxUserName string          `json:"roblox_user_name" db:"roblox_user_name"`
	RaceStart      time.Time       `json:"race_start" db:"race_start"`
	RaceTime       float64         `json:"race_time" db:"race_time"`
	Collisions     json.RawMessage `json:"collisions" db:"collisions"`
	Tracking       json.RawMessage `json:"tracking" db:"tracking"`
	TrackingCount  int             `json:"-" db:"-"`
	ArchiveKey     *string         `json:"archive_key,omitempty" db:"archive_key"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}
