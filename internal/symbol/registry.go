// Package symbol assigns dense integer IDs to fixed-width instrument
// identifiers.
package symbol

// IDWidth is the fixed byte width of an instrument identifier in the
// binary record formats.
const IDWidth = 8

// InstrumentID is the raw fixed-width identifier as it appears on disk.
// Short names are NUL-padded.
type InstrumentID [IDWidth]byte

// Name returns the identifier as a string with trailing NUL padding
// stripped.
func (id InstrumentID) Name() string {
	end := len(id)
	for end > 0 && id[end-1] == 0 {
		end--
	}
	return string(id[:end])
}

// Registry maps instrument identifiers to dense uint32 symbol IDs, assigned
// by a monotonic counter on first sight. The mapping is append-only and
// lives for one processing session. Not safe for concurrent use.
type Registry struct {
	counter uint32
	ids     map[string]uint32
	names   map[uint32]string
}

func NewRegistry() *Registry {
	return &Registry{
		ids:   make(map[string]uint32),
		names: make(map[uint32]string),
	}
}

// GetSymbolID returns the symbol ID for an instrument, assigning the next
// counter value the first time the instrument is seen.
func (r *Registry) GetSymbolID(instrument InstrumentID) uint32 {
	name := instrument.Name()
	if id, ok := r.ids[name]; ok {
		return id
	}
	id := r.counter
	r.counter++
	r.ids[name] = id
	r.names[id] = name
	return id
}

// Name is the reverse lookup; ok is false for IDs never assigned.
func (r *Registry) Name(symbolID uint32) (string, bool) {
	name, ok := r.names[symbolID]
	return name, ok
}

// Len is the number of distinct instruments seen.
func (r *Registry) Len() int { return len(r.ids) }
