package models

import "time"

// ExternalMatchFields lists the columns owned by OpenHeal. They are written
// once, when the sync creates the record, and are frozen afterwards.
var ExternalMatchFields = []string{"id", "participant_id", "preset_id", "level_id", "result_id", "date", "screen_size"}

// LocalMatchFields lists the columns research staff may edit.
var LocalMatchFields = []string{"phase_id", "intervention_id", "moment_id", "is_active", "is_used"}

// MatchRecord is the local copy of an OpenHeal match plus researcher annotations.
type MatchRecord struct {
	// Externally-owned.
	ID            string    `json:"id" db:"id"`
	ParticipantID string    `json:"participant_id" db:"participant_id"`
	PresetID      int       `json:"preset_id" db:"preset_id"`
	LevelID       *int      `json:"level_id" db:"level_id"`
	ResultID      string    `json:"result_id" db:"result_id"`
	Date          time.Time `json:"date" db:"date"`
	ScreenSize    *string   `json:"screen_size" db:"screen_size"`

	// Locally-owned.
	PhaseID        *int `json:"phase_id" db:"phase_id"`
	InterventionID *int `json:"intervention_id" db:"intervention_id"`
	MomentID       *int `json:"moment_id" db:"moment_id"`
	IsActive       bool `json:"is_active" db:"is_active"`
	IsUsed         bool `json:"is_used" db:"is_used"`

	// RawDate holds a source timestamp that could not be parsed; when set and
	// Date is zero the text is handed to the database unchanged.
	RawDate string `json:"-" db:"-"`

	Balls []*BallEvent `json:"balls,omitempty" db:"-"`
}

// ProtectExternalFields overwrites every externally-owned field of m with the
// value stored in the database, discarding whatever the caller assigned.
// Locally-owned fields are left as the caller set them.
func (m *MatchRecord) ProtectExternalFields(stored *MatchRecord) {
	if stored == nil {
		return
	}
	m.ID = stored.ID
	m.ParticipantID = stored.ParticipantID
	m.PresetID = stored.PresetID
	m.LevelID = copyIntPtr(stored.LevelID)
	m.ResultID = stored.ResultID
	m.Date = stored.Date
	m.ScreenSize = copyStringPtr(stored.ScreenSize)
	m.RawDate = ""
}

// DateValue returns the value to bind for the date column.
func (m *MatchRecord) DateValue() interface{} {
	if m.Date.IsZero() && m.RawDate != "" {
		return m.RawDate
	}
	return m.Date
}

func copyIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
