package db

import (
	"strconv"
	"strings"
)

// Dialect selects SQL flavour differences between Postgres and SQLite.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// Rebind rewrites "?" placeholders to "$N" for Postgres.
func (d Dialect) Rebind(q string) string {
	if d != DialectPostgres {
		return q
	}

	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
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
