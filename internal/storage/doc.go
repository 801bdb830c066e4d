// Package storage persists the reminder snapshot: one JSON document mapping
// owner ids to their ordered reminders, rewritten whole on every save.
//
// Drivers:
//   - file: indented JSON file, replaced atomically via temp file + rename
//   - sqlite: single-row table holding the same document (modernc.org/sqlite)
//   - memory: in-process, for tests and dry runs
package storage
