package schedule

import "github.com/Rogers-F/triad-kernel/internal/domain"

// Cursors is the live position of every stream, indexed by StreamID.
type Cursors [domain.StreamCount]domain.StreamCursor

// NewCursors returns cursors positioned at absolute step abs.
func NewCursors(abs int) Cursors {
	var c Cursors
	for _, s := range domain.Streams {
		c[s] = domain.StreamCursor{
			Stream:    s,
			Offset:    Offset(s),
			StartStep: StartStep(s),
		}
	}
	c.Advance(abs)
	return c
}

// Advance recomputes every cursor for absolute step abs. The stream owning
// abs in the table is the active one.
func (c *Cursors) Advance(abs int) {
	owner := MustLookup(abs).Stream
	for i := range c {
		cur := &c[i]
		cur.LocalStep = LocalStep(abs, cur.Stream)
		e := MustLookup(cur.LocalStep)
		cur.Term = e.Term
		cur.Mode = e.Mode
		cur.Active = cur.Stream == owner
	}
}

// LocalSteps returns the three local steps in stream order.
func (c *Cursors) LocalSteps() [3]int {
	var steps [3]int
	for i := range c {
		steps[i] = c[i].LocalStep
	}
	return steps
}

// Slice returns the cursors as a freshly allocated slice.
func (c *Cursors) Slice() []domain.StreamCursor {
	out := make([]domain.StreamCursor, len(c))
	copy(out, c[:])
	return out
}
