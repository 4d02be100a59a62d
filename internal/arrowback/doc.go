// Package arrowback implements a recorder.Backend that stores each record
// title as a table of fixed-width binary rows in an Arrow IPC file.
//
// The first record seen for a title fixes the table layout, in field
// insertion order:
//
//	int, real  8 bytes, little-endian
//	text       16 bytes, NUL-padded, truncated if longer
//	runid      16 bytes
//	blob       32-byte SHA-256 digest of the bytes
//
// Records are packed into rows at their column offsets; columns a record
// does not carry are zero-filled. The rows of one title in one Notify are
// appended as a single record batch. Each Arrow field carries its slot's
// kind, offset and size as metadata, so ReadTable can rebuild the rows.
//
// Blob bytes are written once per digest to the _blobs.arrow table in the
// same directory.
package arrowback
