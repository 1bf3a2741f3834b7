// Package id provides unique identifier generation utilities.
//
// This is the canonical source for ID generation across the interceptd
// codebase:
//
//   - UUID: random UUID v4 for handler and callback identifiers
//   - Sortable: time-ordered UUID v7 for saved requests, so listings sort
//     chronologically by ID
//   - Session: 16-character hex IDs used as the path prefix of a remote
//     interceptor session, where brevity matters because the ID is part of
//     every intercepted URL
//   - Sequence: per-connection call IDs for the remote protocol
package id
