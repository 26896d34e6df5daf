// Package repository holds the database/sql data access for staff and
// customer accounts, roles, permissions and the activity log.  The sentinel
// errors below let the service layer tell failure scenarios apart without
// inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert collides with the unique email
// (or phone) key of an account table.
var ErrEmailExists = errors.New("email already exists")

// MySQL server error numbers the repositories care about.
const (
	mysqlDuplicateEntry  = 1062
	mysqlNoSuchTable     = 1146
	mysqlNoReferencedRow = 1452
)

// IsDuplicate reports whether err is a unique-key violation.
func IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// IsMissingTable reports whether err was caused by a table that does not
// exist.  Best-effort lookups use it to degrade instead of failing.
func IsMissingTable(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlNoSuchTable
}

// IsMissingReference reports whether an insert pointed a foreign key at a
// row that does not exist, e.g. assigning an unknown role.
func IsMissingReference(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlNoReferencedRow
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableUint(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func uintPtr(ni sql.NullInt64) *uint64 {
	if !ni.Valid {
		return nil
	}
	v := uint64(ni.Int64)
	return &v
}
