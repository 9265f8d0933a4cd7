// Package graph holds the concept graph: action, skill and characteristic
// nodes joined by weighted child -> parent edges.
package graph

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Edge weight bounds. Every stored edge weight lies in [MinWeight, MaxWeight].
const (
	MinWeight = 0.01
	MaxWeight = 1.0
)

// NodeType classifies a concept. None is the placeholder type given to
// parents that were referenced before anything described them.
type NodeType int

const (
	TypeNone NodeType = iota
	TypeAction
	TypeSkill
	TypeCharacteristic
)

func (t NodeType) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeAction:
		return "action"
	case TypeSkill:
		return "skill"
	case TypeCharacteristic:
		return "characteristic"
	default:
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
}

// ParseNodeType accepts the lower-case names produced by String, ignoring
// case and surrounding space. The empty string parses as TypeNone.
func ParseNodeType(s string) (NodeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TypeNone, nil
	case "action":
		return TypeAction, nil
	case "skill":
		return TypeSkill, nil
	case "characteristic":
		return TypeCharacteristic, nil
	default:
		return TypeNone, fmt.Errorf("unknown node type %q", s)
	}
}

func (t NodeType) MarshalText() ([]byte, error) {
	switch t {
	case TypeNone, TypeAction, TypeSkill, TypeCharacteristic:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("invalid node type %d", int(t))
	}
}

func (t *NodeType) UnmarshalText(b []byte) error {
	parsed, err := ParseNodeType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Upgrade returns the type a node should carry after observing incoming.
// Only None may change; a specific type is permanent.
func (t NodeType) Upgrade(incoming NodeType) NodeType {
	switch t {
	case TypeNone:
		return incoming
	case TypeAction, TypeSkill, TypeCharacteristic:
		return t
	default:
		return t
	}
}

// Node is a single concept.
type Node struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Type      NodeType  `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Edge is a directed contribution from Source (child) to Target (parent).
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// ID returns the deterministic edge identifier.
func (e Edge) ID() string {
	return EdgeID(e.Source, e.Target)
}

// EdgeID derives the edge identifier for a source/target pair. Node ids are
// slugs and cannot contain '>', so the result is unambiguous.
func EdgeID(source, target string) string {
	return source + "->" + target
}

// ClampWeight forces w into [MinWeight, MaxWeight]. NaN maps to MinWeight.
func ClampWeight(w float64) float64 {
	if math.IsNaN(w) || w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}
