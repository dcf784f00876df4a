package school

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"schooladmin.org/internal/activity"
	"schooladmin.org/internal/auth"
	"schooladmin.org/internal/tenancy"
)

// StudentInput is a create or update submission. Empty strings leave a field
// unchanged on update. TenantID is accepted only so a reassignment attempt can
// be refused.
type StudentInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Grade     string `json:"grade"`
	Status    string `json:"status"`
	TenantID  string `json:"tenant_id"`
}

// ListFilter narrows a student listing.
type ListFilter struct {
	Grade  string
	Status string
	Limit  int
}

// Service reads and writes students within the request's tenant scope.
type Service struct {
	db       *gorm.DB
	recorder *activity.Recorder
}

func NewService(db *gorm.DB, recorder *activity.Recorder) *Service {
	return &Service{db: db, recorder: recorder}
}

func (s *Service) repo(ctx context.Context) *tenancy.Repo[Student, *Student] {
	return tenancy.FromContext[Student](ctx, s.db)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Student, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo(ctx).List(ctx, func(q *gorm.DB) *gorm.DB {
		if f.Grade != "" {
			q = q.Where("grade = ?", f.Grade)
		}
		if f.Status != "" {
			q = q.Where("status = ?", f.Status)
		}
		return q.Order("last_name, first_name").Limit(limit)
	})
}

func (s *Service) Get(ctx context.Context, id string) (Student, error) {
	return s.repo(ctx).Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in StudentInput) (Student, error) {
	verr := &auth.ValidationError{}
	if strings.TrimSpace(in.FirstName) == "" {
		verr.Add("first_name", "validation.required")
	}
	if strings.TrimSpace(in.LastName) == "" {
		verr.Add("last_name", "validation.required")
	}
	status := StudentStatus(in.Status)
	if status == "" {
		status = StudentActive
	}
	if !status.Valid() {
		verr.Add("status", "validation.failed")
	}
	if err := verr.Err(); err != nil {
		return Student{}, err
	}

	rec := &Student{
		TenantID:  in.TenantID,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Grade:     strings.TrimSpace(in.Grade),
		Status:    status,
	}
	if err := s.repo(ctx).Create(ctx, rec); err != nil {
		return Student{}, err
	}
	s.recorder.Record(ctx, activity.Activity{
		Action:     activity.ActionStudentCreated,
		Subject:    activity.On(activity.SubjectStudent, rec.ID),
		Properties: rec.snapshot(),
	})
	return *rec, nil
}

// Update applies in to student id. Moving a student to another tenant is
// refused with tenancy.ErrTenantReassignment.
func (s *Service) Update(ctx context.Context, id string, in StudentInput) (Student, error) {
	repo := s.repo(ctx)
	current, err := repo.Get(ctx, id)
	if err != nil {
		return Student{}, err
	}
	before := current.snapshot()

	next := current
	next.TenantID = in.TenantID
	if v := strings.TrimSpace(in.FirstName); v != "" {
		next.FirstName = v
	}
	if v := strings.TrimSpace(in.LastName); v != "" {
		next.LastName = v
	}
	if v := strings.TrimSpace(in.Grade); v != "" {
		next.Grade = v
	}
	if in.Status != "" {
		if !StudentStatus(in.Status).Valid() {
			return Student{}, auth.Invalid("status", "validation.failed")
		}
		next.Status = StudentStatus(in.Status)
	}
	if err := repo.Update(ctx, &next); err != nil {
		return Student{}, err
	}
	s.recorder.RecordWithDiff(ctx, activity.ActionStudentUpdated,
		activity.Subject{Kind: activity.SubjectStudent, ID: next.ID}, before, next.snapshot(), nil)
	return next, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo(ctx).Count(ctx)
}
