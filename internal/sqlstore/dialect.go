package sqlstore

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the differences between SQL engines.
type Dialect struct {
	// Name identifies the dialect in log lines and errors.
	Name string

	// Numbered switches "?" placeholders to "$1, $2, ...".
	Numbered bool

	// ForUpdate is appended to queries that read rows the transaction is
	// about to modify. Empty for engines that lock at a coarser level.
	ForUpdate string

	// TxOptions are passed to BeginTx.
	TxOptions *sql.TxOptions

	// EncodeTime converts a timestamp to a driver value. Defaults to
	// fixed-width UTC text, which sorts chronologically.
	EncodeTime func(time.Time) any

	// IsTransient reports whether a driver error may succeed when the whole
	// operation is retried.
	IsTransient func(error) bool
}

// rebind rewrites "?" placeholders for numbered dialects.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// textTimeLayout keeps every fractional digit so that text comparison
// orders timestamps the same way time comparison does.
const textTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (d Dialect) encodeTime(t time.Time) any {
	if d.EncodeTime != nil {
		return d.EncodeTime(t)
	}
	return t.UTC().Format(textTimeLayout)
}

func (d Dialect) transient(err error) bool {
	return d.IsTransient != nil && d.IsTransient(err)
}
