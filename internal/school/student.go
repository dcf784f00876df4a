// Package school holds tenant-owned school records.
package school

import (
	"time"

	"gorm.io/gorm"

	"schooladmin.org/internal/ids"
)

type StudentStatus string

const (
	StudentActive    StudentStatus = "active"
	StudentWithdrawn StudentStatus = "withdrawn"
	StudentGraduated StudentStatus = "graduated"
)

func (s StudentStatus) Valid() bool {
	switch s {
	case StudentActive, StudentWithdrawn, StudentGraduated:
		return true
	}
	return false
}

type Student struct {
	ID        string        `gorm:"primaryKey" json:"id"`
	TenantID  string        `gorm:"not null;index" json:"tenant_id"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Grade     string        `json:"grade"`
	Status    StudentStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (Student) TableName() string { return "students" }

func (s *Student) RecordID() string       { return s.ID }
func (s *Student) OwnerTenant() string    { return s.TenantID }
func (s *Student) AssignTenant(id string) { s.TenantID = id }

func (s *Student) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = ids.New()
	}
	return nil
}

func (s Student) snapshot() map[string]any {
	return map[string]any{
		"first_name": s.FirstName,
		"last_name":  s.LastName,
		"grade":      s.Grade,
		"status":     string(s.Status),
	}
}
