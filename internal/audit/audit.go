// Package audit provides the append-only authorization audit trail.
//
// Entries are insert-only: no update or delete path exists in this package,
// and the migration attaches a row-level trigger that rejects UPDATE and
// DELETE on the audit_log table. Writes go through the service's own database
// credentials, never through an actor-scoped session, so the actor that
// triggered an action has no path to its trail.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhealthchain/api/internal/platform/db"
)

// Action tags for authorization-affecting events.
const (
	ActionGrantRequested      = "grant_requested"
	ActionGrantApproved       = "grant_approved"
	ActionGrantRejected       = "grant_rejected"
	ActionMembershipRequested = "membership_requested"
	ActionMembershipApproved  = "membership_approved"
	ActionMembershipRejected  = "membership_rejected"
	ActionPinSet              = "pin_set"
	ActionRecordCreated       = "record_created"
	ActionRecordRead          = "record_read"
	ActionRecordDeleted       = "record_deleted"
	ActionAccessDenied        = "access_denied"
)

// Origin identifies where a request came from.
type Origin struct {
	IPAddress string
	UserAgent string
}

type contextKey string

const originKey contextKey = "audit_origin"

// WithOrigin returns a context carrying the request origin. Handlers attach
// it once so services deep in the call chain can stamp audit entries.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey, o)
}

// OriginFromContext retrieves the request origin, or a zero Origin.
func OriginFromContext(ctx context.Context) Origin {
	o, _ := ctx.Value(originKey).(Origin)
	return o
}

// Entry is one immutable audit record. Seq is assigned by the database and,
// together with RecordedAt, gives a total order over entries.
type Entry struct {
	Seq          int64
	ActorID      uuid.UUID
	ActorRole    string
	Action       string
	ResourceType string
	ResourceID   uuid.UUID
	Metadata     map[string]string
	Origin       Origin
	RecordedAt   time.Time
}

// Recorder persists audit entries. Services depend on this interface;
// Logger is the production implementation.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

// Logger writes audit entries to the audit_log table. When the context
// carries a transaction (via the db package), the insert joins it, so a
// ledger mutation is never visible without its audit entry.
type Logger struct {
	pool *pgxpool.Pool
}

func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

func (l *Logger) Record(ctx context.Context, e *Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("audit: marshal metadata: %w", err)
		}
	}

	const query = `
		INSERT INTO audit_log (
			actor_id, actor_role, action, resource_type, resource_id,
			metadata, ip_address, user_agent, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING seq`

	q := db.QuerierFor(ctx, l.pool)
	err := q.QueryRow(ctx, query,
		e.ActorID, e.ActorRole, e.Action, e.ResourceType, e.ResourceID,
		meta, e.Origin.IPAddress, e.Origin.UserAgent, e.RecordedAt,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("audit: record %s: %w", e.Action, err)
	}
	return nil
}
