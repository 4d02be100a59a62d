// Package datum defines the closed set of typed values a record field can
// hold, together with the field and schema types built on them.
//
// This package imports nothing internal. Every other package that serializes
// values does so through an exhaustive type switch over the five kinds:
//   - Int: 64-bit signed integer
//   - Real: 64-bit float
//   - Text: UTF-8 string
//   - Blob: opaque bytes
//   - RunID: 16-byte simulation run identifier
package datum
