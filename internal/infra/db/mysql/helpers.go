package mysql

import "database/sql"

// nullIfEmpty maps "" onto SQL NULL for nullable text columns
func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
