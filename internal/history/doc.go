// Package history persists a log of completed captures in SQLite.
//
// The Store owns the database connection and schema initialization. One row
// is written per successful capture: where the frame came from (device,
// CRTC, framebuffer), its geometry and pixel format, and where the PNG
// landed. Recording is best-effort from the pipeline's point of view; a
// capture never fails because its history row could not be written.
//
// Schema changes bump the version in schema.go; the store rejects databases
// written under a different version rather than migrating them.
package history
