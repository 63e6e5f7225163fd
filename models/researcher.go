package models

import "time"

type ResearcherRole string

const (
	RoleSuperuser  ResearcherRole = "superuser"
	RoleResearcher ResearcherRole = "researcher"
)

// Researcher is a staff account of the research team.
type Researcher struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Institution  string    `json:"institution" db:"institution"`
	IsSuperuser  bool      `json:"is_superuser" db:"is_superuser"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

func (r *Researcher) Role() ResearcherRole {
	if r.IsSuperuser {
		return RoleSuperuser
	}
	return RoleResearcher
}

// DisplayName returns "First Last" or the username.
func (r *Researcher) DisplayName() string {
	name := r.FirstName
	if r.LastName != "" {
		if name != "" {
			name += " "
		}
		name += r.LastName
	}
	if name == "" {
		return r.Username
	}
	return name
}
