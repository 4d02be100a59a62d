// Package recorder collects structured records produced during a simulation
// run and dispatches them in batches to pluggable storage backends.
//
// # Lifecycle
//
//	rec, err := recorder.New(recorder.WithBufferThreshold(2))
//	rec.RegisterBackend(csvBackend)
//	r := rec.NewRecord("DumbTitle")
//	_ = r.AddVal("animal", datum.NewText("monkey"))
//	_ = r.AddVal("weight", datum.NewInt(10))
//	err = r.Commit()
//	...
//	err = rec.Close()
//
// # Schemas
//
// The first record committed under a title fixes that title's canonical
// schema for the lifetime of the Recorder. Later records may omit schema
// fields but every field they carry must exist in the schema with the same
// kind, otherwise Commit fails with SCHEMA_MISMATCH and the record is
// discarded.
//
// # Dispatch
//
// Committed records are buffered. When the buffer reaches the threshold the
// whole batch is passed to every backend's Notify, in registration order.
// Close dispatches the remainder and then closes every backend. Backend
// failures surface as BACKEND_IO errors naming the backend; there is no
// cross-backend rollback.
package recorder
