package sqlstore

import (
	"database/sql"
	"strconv"
	"strings"
)

// Dialect captures what differs between the SQL backends.
type Dialect struct {
	// Name is used in error messages and logs.
	Name string

	// NumberedParams rewrites ? placeholders to $1, $2, ...
	NumberedParams bool

	// LockOpenShares appends FOR UPDATE to the open-shares query inside
	// transactions.
	LockOpenShares bool

	// TxOptions is passed to BeginTx.
	TxOptions *sql.TxOptions
}

// SQLite serializes writers with BEGIN IMMEDIATE, configured on the DSN.
var SQLite = Dialect{Name: "sqlite"}

// Postgres locks the obligations a settlement reads.
var Postgres = Dialect{
	Name:           "postgres",
	NumberedParams: true,
	LockOpenShares: true,
	TxOptions:      &sql.TxOptions{Isolation: sql.LevelReadCommitted},
}

// rebind converts a query written with ? placeholders to the dialect's form.
func (d Dialect) rebind(query string) string {
	if !d.NumberedParams {
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

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
