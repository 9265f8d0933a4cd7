package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/jsonc"
)

// ErrInvalidFragment is wrapped by every ValidationError.
var ErrInvalidFragment = errors.New("invalid fragment")

// ValidationError describes why an externally supplied fragment was refused.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid fragment: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidFragment }

// Fragment is a small subgraph observed in one journal entry, waiting to be
// merged. Node and parent order follow the order of the source document.
//
// Wire shape:
//
//	{"duration": "30 mins",
//	 "nodes": {"Coding": {"type": "action", "weight": 0.8,
//	                      "parents": {"Engineering": 0.8}}}}
type Fragment struct {
	Duration string
	Nodes    []FragmentNode
}

// FragmentNode proposes one concept and the parents it contributes to.
// Weight is the activation strength for action nodes; zero means unset.
type FragmentNode struct {
	Label   string
	Type    NodeType
	Weight  float64
	Parents []ParentRef
}

// ParentRef is a proposed edge from the enclosing node to Label.
type ParentRef struct {
	Label  string
	Weight float64
}

// ParseFragment decodes a fragment, tolerating JSONC comments and trailing
// commas, and validates its shape.
func ParseFragment(data []byte) (*Fragment, error) {
	var f Fragment
	if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, &ValidationError{Field: "fragment", Reason: err.Error()}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate rejects values Merge cannot interpret. Empty labels and
// self-edges are not errors here; Merge skips them individually.
func (f *Fragment) Validate() error {
	for _, n := range f.Nodes {
		if math.IsNaN(n.Weight) || math.IsInf(n.Weight, 0) {
			return &ValidationError{Field: "nodes." + n.Label + ".weight", Reason: "not a finite number"}
		}
		switch n.Type {
		case TypeNone, TypeAction, TypeSkill, TypeCharacteristic:
		default:
			return &ValidationError{Field: "nodes." + n.Label + ".type", Reason: n.Type.String()}
		}
		for _, p := range n.Parents {
			if math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
				return &ValidationError{Field: "nodes." + n.Label + ".parents." + p.Label, Reason: "not a finite number"}
			}
		}
	}
	return nil
}

// Actions returns the nodes declared as actions.
func (f *Fragment) Actions() []FragmentNode {
	var out []FragmentNode
	for _, n := range f.Nodes {
		if n.Type == TypeAction {
			out = append(out, n)
		}
	}
	return out
}

func (f *Fragment) UnmarshalJSON(data []byte) error {
	var raw struct {
		Duration string          `json:"duration"`
		Nodes    json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Duration = raw.Duration
	f.Nodes = nil
	if isNull(raw.Nodes) {
		return nil
	}

	return eachMember(raw.Nodes, "nodes", func(label string, val json.RawMessage) error {
		var body struct {
			Type    string          `json:"type"`
			Weight  *float64        `json:"weight"`
			Parents json.RawMessage `json:"parents"`
		}
		if err := json.Unmarshal(val, &body); err != nil {
			return &ValidationError{Field: "nodes." + label, Reason: err.Error()}
		}
		typ, err := ParseNodeType(body.Type)
		if err != nil {
			return &ValidationError{Field: "nodes." + label + ".type", Reason: err.Error()}
		}
		n := FragmentNode{Label: label, Type: typ}
		if body.Weight != nil {
			n.Weight = *body.Weight
		}
		if !isNull(body.Parents) {
			field := "nodes." + label + ".parents"
			err := eachMember(body.Parents, field, func(parent string, pv json.RawMessage) error {
				var w float64
				if err := json.Unmarshal(pv, &w); err != nil {
					return &ValidationError{Field: field + "." + parent, Reason: "weight must be a number"}
				}
				n.Parents = append(n.Parents, ParentRef{Label: parent, Weight: w})
				return nil
			})
			if err != nil {
				return err
			}
		}
		f.Nodes = append(f.Nodes, n)
		return nil
	})
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// eachMember walks a JSON object in document order.
func eachMember(data json.RawMessage, field string, fn func(key string, val json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return &ValidationError{Field: field, Reason: err.Error()}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return &ValidationError{Field: field, Reason: "expected an object"}
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return &ValidationError{Field: field, Reason: err.Error()}
		}
		key, ok := tok.(string)
		if !ok {
			return &ValidationError{Field: field, Reason: "expected a string key"}
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return &ValidationError{Field: field + "." + key, Reason: err.Error()}
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return &ValidationError{Field: field, Reason: err.Error()}
	}
	return nil
}
