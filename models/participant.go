package models

import "time"

// ParticipantGroup соответствует CHECK constraint chk_participant_group.
type ParticipantGroup string

const (
	GroupControl      ParticipantGroup = "control"
	GroupExperimental ParticipantGroup = "experimental"
)

func (g ParticipantGroup) Valid() bool {
	return g == GroupControl || g == GroupExperimental
}

// Participant is a study participant. ID is the OpenHeal user id as a string
// and is assigned from the identity lookup, never generated locally.
type Participant struct {
	ID        string           `json:"id" db:"id"`
	StudyID   string           `json:"study_id" db:"study_id"`
	Name      string           `json:"name" db:"name"`
	Email     string           `json:"email" db:"email"`
	Group     ParticipantGroup `json:"group" db:"group_name"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`

	Study *Study `json:"study,omitempty" db:"-"`
}
