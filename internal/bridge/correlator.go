package bridge

import (
	"sync"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// Correlator is the bidirectional origin/process map. Both directions are
// always added and removed together.
type Correlator struct {
	mu        sync.RWMutex
	byOrigin  map[string]string
	byProcess map[string]string
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{
		byOrigin:  make(map[string]string),
		byProcess: make(map[string]string),
	}
}

// Bind links an origin to a process. An origin or process that is already
// bound yields ErrDuplicateOrigin.
func (c *Correlator) Bind(originID, processID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byOrigin[originID]; ok {
		return domain.NewEngineError(domain.ErrDuplicateOrigin.Code, "origin already has a live process: "+originID)
	}
	if _, ok := c.byProcess[processID]; ok {
		return domain.NewEngineError(domain.ErrDuplicateOrigin.Code, "process already correlated: "+processID)
	}
	c.byOrigin[originID] = processID
	c.byProcess[processID] = originID
	return nil
}

// Process returns the live process for an origin.
func (c *Correlator) Process(originID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byOrigin[originID]
	return id, ok
}

// Origin returns the origin for a live process.
func (c *Correlator) Origin(processID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byProcess[processID]
	return id, ok
}

// Remove retires both entries for a process. It returns the origin that was
// bound, if any.
func (c *Correlator) Remove(processID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	origin, ok := c.byProcess[processID]
	if !ok {
		return "", false
	}
	delete(c.byProcess, processID)
	delete(c.byOrigin, origin)
	return origin, true
}

// Len returns the number of live correlations.
func (c *Correlator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byProcess)
}
