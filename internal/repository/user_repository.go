package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/trustcart/backoffice-auth/internal/model"
)

// StaffRepo reads and writes staff accounts in the `users` table.
type StaffRepo struct{ DB *sql.DB }

func NewStaffRepo(db *sql.DB) *StaffRepo { return &StaffRepo{DB: db} }

const staffColumns = "id,email,phone,password_hash,name,last_name,role_id,status,created_at,updated_at"

// Create inserts a staff account and returns its ID.  PasswordHash must be
// hashed already.  A duplicate email or phone yields ErrEmailExists.
func (r *StaffRepo) Create(ctx context.Context, u model.StaffAccount) (uint64, error) {
	status := u.Status
	if status == "" {
		status = model.StatusActive
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, phone, password_hash, name, last_name, role_id, status) VALUES (?,?,?,?,?,?,?)",
		strings.ToLower(strings.TrimSpace(u.Email)), nullableString(u.Phone), u.PasswordHash,
		u.Name, u.LastName, nullableUint(u.RoleID), status)
	if err != nil {
		if IsDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a staff account by normalized email.
func (r *StaffRepo) GetByEmail(ctx context.Context, email string) (model.StaffAccount, error) {
	return r.getOne(ctx, "SELECT "+staffColumns+" FROM users WHERE email=? LIMIT 1",
		strings.ToLower(strings.TrimSpace(email)))
}

// GetByPhone fetches a staff account by phone number.
func (r *StaffRepo) GetByPhone(ctx context.Context, phone string) (model.StaffAccount, error) {
	return r.getOne(ctx, "SELECT "+staffColumns+" FROM users WHERE phone=? LIMIT 1", strings.TrimSpace(phone))
}

// GetByID fetches a staff account by id.
func (r *StaffRepo) GetByID(ctx context.Context, id uint64) (model.StaffAccount, error) {
	return r.getOne(ctx, "SELECT "+staffColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// UpdateRole points the primary role of a staff account at roleID.
func (r *StaffRepo) UpdateRole(ctx context.Context, id, roleID uint64) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET role_id = ? WHERE id = ?", roleID, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		if err := r.DB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (r *StaffRepo) getOne(ctx context.Context, query string, arg any) (model.StaffAccount, error) {
	var (
		u      model.StaffAccount
		phone  sql.NullString
		roleID sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &phone, &u.PasswordHash,
		&u.Name, &u.LastName, &roleID, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.StaffAccount{}, notFound(err)
	}
	u.Phone = stringPtr(phone)
	u.RoleID = uintPtr(roleID)
	return u, nil
}
