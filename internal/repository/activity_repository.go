package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/trustcart/backoffice-auth/internal/model"
)

const (
	defaultActivityLimit = 100
	maxActivityLimit     = 1000
)

// ActivityRepo appends to and scans the activity_logs table.  Rows are never
// updated or deleted.
type ActivityRepo struct{ DB *sql.DB }

func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{DB: db} }

// Insert appends an entry and returns its ID.
func (r *ActivityRepo) Insert(ctx context.Context, e model.ActivityLog) (uint64, error) {
	var desc *string
	if e.Description != "" {
		desc = &e.Description
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO activity_logs (user_id, role_slug, module, action, resource_type, resource_id, description, ip_address, user_agent, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,UTC_TIMESTAMP())`,
		nullableUint(e.UserID), nullableString(e.RoleSlug), e.Module, e.Action, e.ResourceType, e.ResourceID,
		nullableString(desc), e.IPAddress, e.UserAgent)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// List returns entries matching f, newest first.
func (r *ActivityRepo) List(ctx context.Context, f model.ActivityFilter) ([]model.ActivityLog, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Module != "" {
		where = append(where, "module = ?")
		args = append(args, f.Module)
	}
	if f.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.UTC())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	q := `SELECT id,user_id,role_slug,module,action,resource_type,resource_id,description,ip_address,user_agent,created_at
		FROM activity_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ActivityLog{}
	for rows.Next() {
		var (
			e        model.ActivityLog
			userID   sql.NullInt64
			roleSlug sql.NullString
			desc     sql.NullString
		)
		if err := rows.Scan(&e.ID, &userID, &roleSlug, &e.Module, &e.Action, &e.ResourceType, &e.ResourceID,
			&desc, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = uintPtr(userID)
		e.RoleSlug = stringPtr(roleSlug)
		e.Description = desc.String
		out = append(out, e)
	}
	return out, rows.Err()
}
