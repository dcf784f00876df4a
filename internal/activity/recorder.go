// Package activity keeps the append-only audit trail of user actions.
package activity

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"schooladmin.org/internal/auth"
	"schooladmin.org/internal/ids"
	"schooladmin.org/internal/obs"
	"schooladmin.org/internal/tenancy"
)

// Store persists entries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
}

// Activity describes something an actor did.
type Activity struct {
	Action     Action
	Subject    *Subject
	Properties map[string]any
	Old        map[string]any
	New        map[string]any
	// Actor overrides the principal found in the context.
	Actor *auth.User
}

// Recorder writes activity entries. Its methods never return an error: the
// audit trail must not break the operation being audited.
type Recorder struct {
	store Store
	now   func() time.Time
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// WithClock overrides the time source.
func (r *Recorder) WithClock(fn func() time.Time) *Recorder {
	if fn != nil {
		r.now = fn
	}
	return r
}

// Record stores a. The boolean is false when nothing was written, either
// because no actor could be determined or because persistence failed.
func (r *Recorder) Record(ctx context.Context, a Activity) (entry Entry, ok bool) {
	log := obs.LoggerFrom(ctx)
	defer func() {
		if p := recover(); p != nil {
			log.Error("activity record panicked", zap.String("action", string(a.Action)), zap.Any("panic", p))
			obs.ActivityFailed()
			entry, ok = Entry{}, false
		}
	}()

	actor := a.Actor
	if actor == nil {
		p, found := auth.PrincipalFromContext(ctx)
		if !found {
			return Entry{}, false
		}
		actor = &p.User
	}

	subject := Subject{Kind: SubjectUser, ID: actor.ID}
	if a.Subject != nil {
		subject = *a.Subject
	}
	if !subject.Kind.Valid() {
		log.Warn("activity subject kind unknown", zap.String("kind", string(subject.Kind)))
		obs.ActivityFailed()
		return Entry{}, false
	}

	tenantID, bound := tenancy.TenantFrom(ctx)
	if !bound {
		tenantID = actor.TenantID
	}
	meta := auth.RequestMetaFromContext(ctx)

	e := Entry{
		ID:          ids.New(),
		UserID:      actor.ID,
		Action:      string(a.Action),
		Description: Describe(a.Action),
		SubjectType: string(subject.Kind),
		SubjectID:   subject.ID,
		Properties:  jsonMap(a.Properties),
		OldValues:   jsonMap(a.Old),
		NewValues:   jsonMap(a.New),
		IPAddress:   meta.IP,
		UserAgent:   meta.UserAgent,
		CreatedAt:   r.now().UTC(),
	}
	e.AssignTenant(tenantID)

	if err := r.store.Append(ctx, &e); err != nil {
		log.Warn("activity record failed",
			zap.String("action", e.Action),
			zap.String("user_id", e.UserID),
			zap.Error(err),
		)
		obs.ActivityFailed()
		return Entry{}, false
	}
	// audit trail line for log shipping
	log.Info("audit",
		zap.String("event", e.Action),
		zap.String("entry_id", e.ID),
		zap.String("user_id", e.UserID),
		zap.String("tenant_id", e.OwnerTenant()),
		zap.String("subject", e.SubjectType+":"+e.SubjectID),
		zap.String("request_id", meta.RequestID),
	)
	return e, true
}

// RecordWithDiff stores only the keys whose values differ between old and new.
func (r *Recorder) RecordWithDiff(ctx context.Context, action Action, subject Subject, old, updated map[string]any, actor *auth.User) (Entry, bool) {
	before, after := diff(old, updated)
	return r.Record(ctx, Activity{
		Action:  action,
		Subject: &subject,
		Old:     before,
		New:     after,
		Actor:   actor,
	})
}

func diff(old, updated map[string]any) (map[string]any, map[string]any) {
	before := make(map[string]any)
	after := make(map[string]any)
	for k, nv := range updated {
		ov, had := old[k]
		if had && reflect.DeepEqual(ov, nv) {
			continue
		}
		if had {
			before[k] = ov
		}
		after[k] = nv
	}
	for k, ov := range old {
		if _, still := updated[k]; !still {
			before[k] = ov
		}
	}
	return before, after
}

func jsonMap(m map[string]any) datatypes.JSONMap {
	if len(m) == 0 {
		return nil
	}
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		switch tv := v.(type) {
		case time.Time:
			out[k] = tv.UTC().Format(time.RFC3339)
		case fmt.Stringer:
			out[k] = tv.String()
		default:
			out[k] = v
		}
	}
	return out
}
