package activity

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentdesk/rentdesk/internal/platform/db"
	"github.com/rentdesk/rentdesk/internal/shared"
)

// Repository reads activity_logs.
type Repository interface {
	Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error)
}

// PGRepository implements Repository with PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window returns up to limit entries after offset, latest first.
func (r *PGRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error) {
	var conds db.Conditions
	if !filters.From.IsZero() {
		conds.Add("a.occurred_at >= $?", filters.From)
	}
	if !filters.To.IsZero() {
		conds.Add("a.occurred_at < $?", filters.To.AddDate(0, 0, 1))
	}
	if filters.Entity != "" {
		conds.Add("a.entity = $?", filters.Entity)
	}
	if filters.Action != "" {
		conds.Add("a.action = $?", filters.Action)
	}
	if term := shared.FoldSearch(filters.Search); term != "" {
		conds.Add(`(lower(unaccent(COALESCE(p.full_name, ''))) LIKE $? OR lower(COALESCE(p.email, '')) LIKE $?
	OR a.entity_id LIKE $? OR lower(unaccent(a.details::text)) LIKE $?)`, shared.LikePattern(term))
	}
	lim := conds.Next(limit)
	off := conds.Next(offset)
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.occurred_at, COALESCE(a.actor_id, 0), COALESCE(p.full_name, ''),
	COALESCE(p.email, ''), a.action, a.entity, a.entity_id, COALESCE(a.shop_id, 0), a.details
FROM activity_logs a
LEFT JOIN profiles p ON p.id = a.actor_id`+conds.Where()+`
ORDER BY a.occurred_at DESC, a.id DESC
LIMIT `+lim+` OFFSET `+off, conds.Args()...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var raw []byte
		if err := rows.Scan(&e.ID, &e.At, &e.ActorID, &e.ActorName, &e.ActorEmail, &e.Action, &e.Entity,
			&e.EntityID, &e.ShopID, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
