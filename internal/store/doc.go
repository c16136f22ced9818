// Package store keeps a SQLite history of conformance and load runs.
//
// Each run is one row in runs with its canonical JSON report. Suite runs
// add one scenario_results row per scenario; load runs add a single
// load_summaries row.
//
// # Ordering
//
// Listings are ordered by started_at DESC, id ASC COLLATE BINARY so two
// runs started in the same millisecond still list the same way every time.
// ScenarioHistory follows a single scenario across suite runs through the
// (name, run_id) index.
//
// # Connection settings
//
// Every connection is opened with journal_mode=WAL, synchronous=NORMAL,
// busy_timeout=5000 and foreign_keys=on. The schema version lives in
// PRAGMA user_version; Open refuses databases newer than it understands.
package store
