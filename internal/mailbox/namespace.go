package mailbox

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultName is the mailbox name used by a pilot when none is configured.
const DefaultName = "/bal_Pilot"

// ErrBusy is returned by Open when a live mailbox already owns the name.
var ErrBusy = errors.New("mailbox name in use")

// Namespace is a table of named mailboxes, the in-process counterpart of a
// POSIX message queue namespace. A name maps to at most one open mailbox.
type Namespace struct {
	mu    sync.Mutex
	boxes map[string]*Mailbox
}

// NewNamespace creates an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{boxes: make(map[string]*Mailbox)}
}

// Default is the process-wide namespace.
var Default = NewNamespace()

// Open creates the mailbox registered under name. A closed mailbox left
// behind under the same name is unlinked first.
func (ns *Namespace) Open(name string, capacity int) (*Mailbox, error) {
	if name == "" {
		return nil, errors.New("mailbox name is required")
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if existing, ok := ns.boxes[name]; ok {
		if !existing.isClosed() {
			return nil, fmt.Errorf("open %s: %w", name, ErrBusy)
		}
		delete(ns.boxes, name)
	}
	m := newMailbox(name, capacity)
	ns.boxes[name] = m
	return m, nil
}

// Lookup returns the mailbox registered under name.
func (ns *Namespace) Lookup(name string) (*Mailbox, bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	m, ok := ns.boxes[name]
	return m, ok
}

// Release unlinks m if it is still the mailbox registered under its name.
// It always closes m, and releasing twice is not an error.
func (ns *Namespace) Release(m *Mailbox) error {
	ns.mu.Lock()
	if cur, ok := ns.boxes[m.name]; ok && cur == m {
		delete(ns.boxes, m.name)
	}
	ns.mu.Unlock()
	return m.Close()
}

// Names returns the registered names, sorted.
func (ns *Namespace) Names() []string {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	names := make([]string, 0, len(ns.boxes))
	for n := range ns.boxes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
