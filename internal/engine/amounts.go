package engine

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Amounts is a sparse map of key -> value that remembers first-insertion
// order, so downstream consumers walk it deterministically.
type Amounts struct {
	keys []string
	vals map[string]float64
}

// NewAmounts returns an empty Amounts.
func NewAmounts() *Amounts {
	return &Amounts{vals: make(map[string]float64)}
}

// Add accumulates v into key.
func (a *Amounts) Add(key string, v float64) {
	if a.vals == nil {
		a.vals = make(map[string]float64)
	}
	if _, ok := a.vals[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.vals[key] += v
}

// Get returns the value for key, or zero.
func (a *Amounts) Get(key string) float64 {
	if a == nil {
		return 0
	}
	return a.vals[key]
}

// Keys returns keys in insertion order.
func (a *Amounts) Keys() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

func (a *Amounts) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Total sums every value.
func (a *Amounts) Total() float64 {
	total := 0.0
	for _, k := range a.Keys() {
		total += a.vals[k]
	}
	return total
}

// Scale returns a copy with every value multiplied by m.
func (a *Amounts) Scale(m float64) *Amounts {
	out := NewAmounts()
	for _, k := range a.Keys() {
		out.Add(k, a.vals[k]*m)
	}
	return out
}

// Map returns a plain copy of the values.
func (a *Amounts) Map() map[string]float64 {
	out := make(map[string]float64, a.Len())
	for _, k := range a.Keys() {
		out[k] = a.vals[k]
	}
	return out
}

// Sorted returns keys ordered by descending value, ties by key.
func (a *Amounts) Sorted() []string {
	keys := a.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		vi, vj := a.vals[keys[i]], a.vals[keys[j]]
		if vi != vj {
			return vi > vj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// MarshalJSON encodes an object whose members follow insertion order.
func (a *Amounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(a.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping member order.
func (a *Amounts) UnmarshalJSON(data []byte) error {
	*a = Amounts{vals: make(map[string]float64)}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v float64
		if err := dec.Decode(&v); err != nil {
			return err
		}
		a.Add(key, v)
	}
	_, err := dec.Token()
	return err
}
