// Package fsdir implements ports.Directory on a shared file system tree so
// that registrations are visible to every process on the host.
//
// # Layout
//
//	<root>/<scope>/.lock          flock guarding catalog and uncatalog
//	<root>/<scope>/<name>.toml    one entry per cataloged name
//
// Names are escaped so that any printable ASCII name maps to a single path
// element. Entries are written to a temporary file and renamed into place,
// so readers never observe a partial entry.
//
// Lookups with a wait use fsnotify to wake up when an entry appears, and
// fall back to polling when the watcher cannot be created.
package fsdir
