// Package users maintains the user id to user name directory used to label
// exported rows.
package users

import (
	"maps"
	"slices"
	"sync"
)

// Unknown is the name reported for ids missing from the directory.
const Unknown = "None"

// Directory maps user ids to user names. It is safe for concurrent use.
type Directory struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewDirectory creates a directory holding a copy of names.
func NewDirectory(names map[string]string) *Directory {
	d := &Directory{names: make(map[string]string, len(names))}
	maps.Copy(d.names, names)
	return d
}

// Lookup returns the name of id.
func (d *Directory) Lookup(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[id]
	return name, ok
}

// Name returns the name of id, or Unknown.
func (d *Directory) Name(id string) string {
	if name, ok := d.Lookup(id); ok {
		return name
	}
	return Unknown
}

// Set adds or replaces one entry.
func (d *Directory) Set(id, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[id] = name
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}

// IDs returns every id in sorted order.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.names))
}

// Snapshot returns a copy of the directory contents.
func (d *Directory) Snapshot() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.names)
}
