// Package csvback implements a recorder.Backend that writes each record
// title to its own delimited text file.
//
// File layout inside the target directory:
//
//	<title>.csv   header "SimID, f1, f2, ..." then one line per record
//	<uuid>.blob   raw bytes of one Blob value, referenced by name from a row
//
// Text and run-id values are double-quoted, numbers are bare. A column the
// record does not carry is written as "". The header is only written when
// the file is created, so reopening a directory appends to existing tables.
package csvback
