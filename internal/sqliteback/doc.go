// Package sqliteback implements a recorder.Backend over an embedded SQLite
// database, one table per record title.
//
// # Tables
//
// The first record seen for a title creates its table. Columns are that
// record's field names, SimID included, sorted lexicographically, with types
// derived from the value kind:
//
//	int   INTEGER
//	real  REAL
//	text  VARCHAR(128)
//	blob  BLOB
//	runid CHAR(36)
//
// Every column is also described in the FieldTypes table so Query can decode
// cells back into typed values.
//
// # Writes
//
// Each record becomes one INSERT naming only the columns it carries; omitted
// columns are left NULL. Statements are queued during Notify and executed in
// one transaction at its end. No ALTER is ever issued: a later record with a
// column the table lacks fails the batch.
//
// # Database Configuration
//
//   - WAL mode
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - single connection (SQLite has one writer)
package sqliteback
