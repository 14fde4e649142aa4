// slot.go
// Dieses Modul enthaelt den aktiven Kontext pro OS-Thread. Der Eintrag
// eines Threads wird gegen den aktuellen Kontext des Treibers abgeglichen,
// damit veraltete Eintraege (Thread beendet, ID wiederverwendet, Kontext
// zerstoert) als leer gelten.

package device

import (
	"sync"

	"github.com/ollama/accel/driver"
	"github.com/ollama/accel/internal/osthread"
)

type slotTable struct {
	mu     sync.Mutex
	active map[int]driver.Context
}

var slots = slotTable{active: make(map[int]driver.Context)}

// get returns the active context of the calling thread. The caller must hold
// runtime.LockOSThread.
func (s *slotTable) get(drv driver.Driver) (driver.Context, bool) {
	tid := osthread.ID()

	s.mu.Lock()
	h, ok := s.active[tid]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}

	if cur, err := drv.CtxGetCurrent(); err != nil || cur != h {
		s.mu.Lock()
		if s.active[tid] == h {
			delete(s.active, tid)
		}
		s.mu.Unlock()
		return 0, false
	}

	return h, true
}

// swap makes h the active context of the calling thread and returns the
// previous entry. A zero h empties the slot.
func (s *slotTable) swap(h driver.Context) (prev driver.Context, ok bool) {
	tid := osthread.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok = s.active[tid]
	if h == 0 {
		delete(s.active, tid)
	} else {
		s.active[tid] = h
	}
	return prev, ok
}

// holds reports whether the calling thread's slot holds h, without
// consulting the driver.
func (s *slotTable) holds(h driver.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.active[osthread.ID()]
	return ok && cur == h
}
