// Package portregistry coordinates TCP port ownership between independently
// launched processes (review sessions and similar services).
//
// Two backends implement Store. The JSON backend keeps the shared registry
// file format: an array of entries, read and rewritten on every change under
// an exclusive lock on "<file>.lock", with the rewrite done by temp file and
// rename. A missing JSON file means tracking is disabled and every request is
// granted without being recorded. The SQLite backend keys reservations by
// port and resolves races with a primary-key insert, so it always tracks.
//
// A port may be held by only one (name, storage path) pair. Asking again with
// the same pair succeeds without adding a row.
package portregistry
