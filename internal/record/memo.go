package record

import "github.com/roach88/samplerec/internal/ir"

const defaultMemoSize = 32

// captureMemo holds recent successful captures keyed by ir.CaptureKey. It
// evicts in insertion order once full.
type captureMemo struct {
	sets  map[string]ir.CapturedValueSet
	order []string
	limit int
}

func newCaptureMemo(limit int) *captureMemo {
	if limit <= 0 {
		limit = defaultMemoSize
	}
	return &captureMemo{sets: make(map[string]ir.CapturedValueSet), limit: limit}
}

func (m *captureMemo) get(key string) (ir.CapturedValueSet, bool) {
	set, ok := m.sets[key]
	if !ok {
		return ir.CapturedValueSet{}, false
	}
	return set.Clone(), true
}

func (m *captureMemo) put(set ir.CapturedValueSet) {
	if _, ok := m.sets[set.Key]; !ok {
		if len(m.order) >= m.limit {
			delete(m.sets, m.order[0])
			m.order = m.order[1:]
		}
		m.order = append(m.order, set.Key)
	}
	m.sets[set.Key] = set.Clone()
}

func (m *captureMemo) reset() {
	clear(m.sets)
	m.order = m.order[:0]
}

func (m *captureMemo) len() int {
	return len(m.sets)
}
