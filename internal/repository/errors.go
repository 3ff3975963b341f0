// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the services above to
// distinguish between different failure scenarios without looking at
// driver specific errors. For example, ErrDuplicate indicates a unique
// key violation (a reused payment reference or coupon code), while
// ErrConflict signals that a row exists but belongs to someone else.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row. Services
// translate it into a NotFound error with an entity specific message.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique key.
var ErrDuplicate = errors.New("duplicate key")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as registering a bank account number that is
// already attached to another user.
var ErrConflict = errors.New("conflict")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a MySQL unique key violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// mapInsertErr converts a unique key violation into ErrDuplicate and
// leaves other errors untouched.
func mapInsertErr(err error) error {
	if isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}
