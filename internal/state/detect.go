package state

import "slices"

// ResultMode selects how a sensor records its matches.
type ResultMode string

const (
	// ResultModeID stores only the matched entity ID.
	ResultModeID ResultMode = "id"
	// ResultModeLite stores a small snapshot that stays valid after the
	// target is deleted.
	ResultModeLite ResultMode = "lite"
)

// Detectable is the identity side of a detection channel.
type Detectable struct {
	Labels []string `json:"labels,omitempty"`
	Layer  uint32   `json:"layer"`
}

// HasLabel reports whether label is present.
func (d *Detectable) HasLabel(label string) bool {
	if d == nil {
		return false
	}
	return slices.Contains(d.Labels, label)
}

// HitSet is a set of entity IDs.
type HitSet map[EntityID]struct{}

func (s HitSet) Has(id EntityID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s HitSet) Sorted() []EntityID {
	ids := make([]EntityID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Hit is one sensor result. In id mode only ID is populated.
type Hit struct {
	ID     EntityID `json:"id"`
	UUID   string   `json:"uuid,omitempty"`
	Type   string   `json:"type,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

// Detect is the query side of a detection channel. The hit sets and results
// are runtime state and never serialized.
type Detect struct {
	LayerMask      uint32     `json:"layerMask"`
	CCDEnabled     bool       `json:"ccdEnabled,omitempty"`
	CCDMinDistance float64    `json:"ccdMinDistance,omitempty"`
	CCDBuffer      float64    `json:"ccdBuffer,omitempty"`
	ResultMode     ResultMode `json:"resultMode,omitempty"`

	LastHits   HitSet     `json:"-"`
	ActiveHits HitSet     `json:"-"`
	Results    []Hit      `json:"-"`
	Entered    []EntityID `json:"-"`
	Exited     []EntityID `json:"-"`
}

// EnsureBuffers allocates the two hit sets once.
func (d *Detect) EnsureBuffers() {
	if d.LastHits == nil {
		d.LastHits = make(HitSet)
	}
	if d.ActiveHits == nil {
		d.ActiveHits = make(HitSet)
	}
}

// Rotate makes the active set the last set and clears the new active set.
// The two maps are swapped, not reallocated.
func (d *Detect) Rotate() {
	d.LastHits, d.ActiveHits = d.ActiveHits, d.LastHits
	clear(d.ActiveHits)
}

// ResetRuntime drops all runtime hit state.
func (d *Detect) ResetRuntime() {
	if d == nil {
		return
	}
	clear(d.LastHits)
	clear(d.ActiveHits)
	d.Results = d.Results[:0]
	d.Entered = d.Entered[:0]
	d.Exited = d.Exited[:0]
}
