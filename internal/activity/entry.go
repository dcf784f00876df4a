package activity

import (
	"time"

	"gorm.io/datatypes"
)

type SubjectKind string

const (
	SubjectUser    SubjectKind = "user"
	SubjectTenant  SubjectKind = "tenant"
	SubjectSession SubjectKind = "session"
	SubjectToken   SubjectKind = "token"
	SubjectStudent SubjectKind = "student"
)

func (k SubjectKind) Valid() bool {
	switch k {
	case SubjectUser, SubjectTenant, SubjectSession, SubjectToken, SubjectStudent:
		return true
	}
	return false
}

// Subject is what an activity is about.
type Subject struct {
	Kind SubjectKind
	ID   string
}

// On builds a Subject.
func On(kind SubjectKind, id string) *Subject {
	return &Subject{Kind: kind, ID: id}
}

// Entry is one append-only activity log row.
type Entry struct {
	ID          string            `gorm:"primaryKey" json:"id"`
	TenantID    *string           `json:"tenant_id,omitempty"`
	UserID      string            `gorm:"not null" json:"user_id"`
	Action      string            `gorm:"not null" json:"action"`
	Description string            `gorm:"not null" json:"description"`
	SubjectType string            `gorm:"not null" json:"subject_type"`
	SubjectID   string            `gorm:"not null" json:"subject_id"`
	Properties  datatypes.JSONMap `gorm:"type:jsonb" json:"properties,omitempty"`
	OldValues   datatypes.JSONMap `gorm:"type:jsonb" json:"old_values,omitempty"`
	NewValues   datatypes.JSONMap `gorm:"type:jsonb" json:"new_values,omitempty"`
	IPAddress   string            `json:"ip_address,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (Entry) TableName() string { return "activity_log" }

func (e *Entry) RecordID() string { return e.ID }

// AllowsNoTenant lets global-mode entries through an unscoped repository.
func (e *Entry) AllowsNoTenant() bool { return true }

func (e *Entry) OwnerTenant() string {
	if e.TenantID == nil {
		return ""
	}
	return *e.TenantID
}

func (e *Entry) AssignTenant(id string) {
	if id == "" {
		e.TenantID = nil
		return
	}
	e.TenantID = &id
}
