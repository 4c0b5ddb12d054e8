// Package repository defines the storage contracts of the service and its
// two implementations: a MySQL store built on database/sql and an
// in-memory store.  The sentinel values below let the service layer
// distinguish failure scenarios without depending on a driver.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a guarded write matched no row because the
// row changed underneath the caller (stale version, status already moved).
var ErrConflict = errors.New("conflict")

// MySQL error numbers worth retrying: the statement or transaction lost a
// race for locks and can be re-run unchanged.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// IsTransient reports whether err is a storage failure that may succeed
// when the unit of work is re-run.  Business outcomes (ErrNotFound,
// ErrConflict) and context cancellation are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlLockWaitTimeout || me.Number == mysqlDeadlock
	}
	return false
}
