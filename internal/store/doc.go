package store

// Package store persists every reminder the engine has ever scheduled,
// keyed by notification id, so dismissals survive process restarts.
//
// It currently supports:
//   - A dependency-free file backend (snapshot + journal)
//   - A SQLite backend (optional build tag)
