package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/trustcart/backoffice-auth/internal/model"
)

// CustomerRepo reads and writes storefront customers.
type CustomerRepo struct{ DB *sql.DB }

func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{DB: db} }

const customerColumns = "id,email,phone,password_hash,name,last_name,lifecycle_stage,customer_type,status,created_at,updated_at"

// Create inserts a customer and returns its ID.
func (r *CustomerRepo) Create(ctx context.Context, c model.CustomerAccount) (uint64, error) {
	var email *string
	if c.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*c.Email))
		email = &e
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO customers (email, phone, password_hash, name, last_name, lifecycle_stage, customer_type, status)
		 VALUES (?,?,?,?,?,?,?,?)`,
		nullableString(email), nullableString(c.Phone), nullableString(c.PasswordHash),
		c.Name, c.LastName, c.LifecycleStage, c.CustomerType, c.Status)
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

func (r *CustomerRepo) GetByEmail(ctx context.Context, email string) (model.CustomerAccount, error) {
	return r.getOne(ctx, "SELECT "+customerColumns+" FROM customers WHERE email=? LIMIT 1",
		strings.ToLower(strings.TrimSpace(email)))
}

func (r *CustomerRepo) GetByPhone(ctx context.Context, phone string) (model.CustomerAccount, error) {
	return r.getOne(ctx, "SELECT "+customerColumns+" FROM customers WHERE phone=? ORDER BY id LIMIT 1",
		strings.TrimSpace(phone))
}

func (r *CustomerRepo) getOne(ctx context.Context, query string, arg any) (model.CustomerAccount, error) {
	var (
		c                   model.CustomerAccount
		email, phone, phash sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&c.ID, &email, &phone, &phash, &c.Name, &c.LastName,
		&c.LifecycleStage, &c.CustomerType, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.CustomerAccount{}, notFound(err)
	}
	c.Email = stringPtr(email)
	c.Phone = stringPtr(phone)
	c.PasswordHash = stringPtr(phash)
	return c, nil
}
