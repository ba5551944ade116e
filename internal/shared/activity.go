package shared

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Activity actions stored in activity_logs.action.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionLogin  = "login"
	ActionLogout = "logout"
	ActionSystem = "system"
)

// Activity represents a record stored in activity_logs.
type Activity struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	ShopID   int64
	Details  map[string]any
	At       time.Time
}

// ActivityRecorder is implemented by anything able to persist activity entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry Activity)
}

// CacheBumper invalidates derived read models after a write.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// ActivityLogger writes records into activity_logs.
type ActivityLogger struct {
	pool   *pgxpool.Pool
	cache  CacheBumper
	logger *slog.Logger
}

// NewActivityLogger returns a new ActivityLogger. cache may be nil.
func NewActivityLogger(pool *pgxpool.Pool, cache CacheBumper, logger *slog.Logger) *ActivityLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityLogger{pool: pool, cache: cache, logger: logger}
}

// Record persists the entry. Failures are logged, never returned: the business
// operation that produced the entry has already been committed.
func (l *ActivityLogger) Record(ctx context.Context, entry Activity) {
	if l == nil || l.pool == nil {
		return
	}
	if entry.Action == "" || entry.Entity == "" {
		l.logger.Warn("activity entry missing action or entity", slog.String("entity", entry.Entity))
		return
	}
	if entry.ActorID == 0 {
		if id, ok := CurrentUserID(ctx); ok {
			entry.ActorID = id
		}
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		l.logger.Warn("encode activity details", slog.Any("error", err))
		detailsJSON = []byte("{}")
	}
	var at *time.Time
	if !entry.At.IsZero() {
		at = &entry.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO activity_logs (actor_id, action, entity, entity_id, shop_id, details, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		nullableID(entry.ActorID), entry.Action, entry.Entity, entry.EntityID, nullableID(entry.ShopID), detailsJSON, at)
	if err != nil {
		l.logger.Warn("record activity", slog.String("entity", entry.Entity), slog.String("action", entry.Action), slog.Any("error", err))
		return
	}
	if l.cache != nil {
		if err := l.cache.Bump(ctx); err != nil {
			l.logger.Warn("bump dashboard cache", slog.Any("error", err))
		}
	}
}

// EntityRef formats an identifier for Activity.EntityID.
func EntityRef(id int64) string {
	return strconv.FormatInt(id, 10)
}

func nullableID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

// NopActivity discards entries; handy for tools that do not log activity.
type NopActivity struct{}

// Record implements ActivityRecorder.
func (NopActivity) Record(context.Context, Activity) {}
