package repo

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dispatchline/internal/db"
	"dispatchline/internal/domain"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = domain.ErrNotFound

// Repo is a thin SQL repository. It runs against the pool or, via WithTx, inside a transaction.
type Repo struct {
	DB db.DBTX
}

func New(conn db.DBTX) Repo {
	return Repo{DB: conn}
}

// WithTx returns a repository bound to tx.
func (r Repo) WithTx(tx *sql.Tx) Repo {
	return Repo{DB: tx}
}

// Timestamps are stored as fixed-width UTC strings so lexical order equals time order.
const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// TimestampPrecision is the finest resolution a stored instant keeps.
const TimestampPrecision = time.Millisecond

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// FormatTimestamp renders t the way it is stored.
func FormatTimestamp(t time.Time) string {
	return formatTS(t)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
