package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// State is the whole concept graph for one user. Nodes are keyed by id and
// edges by EdgeID. Version counts persisted saves; a merge that changes
// something advances it in memory ahead of the save.
//
// A State is not safe for concurrent mutation; callers hold the only
// mutable reference and replace it with the result of a merge.
//
// Nodes must change through AddNode, PutNode and RemoveNode, which keep the
// label index in step. Code that writes the map directly calls Reindex
// afterwards.
type State struct {
	Nodes   map[string]Node `json:"nodes"`
	Edges   map[string]Edge `json:"edges"`
	Version int64           `json:"version"`

	// normalized label -> id; nil means rebuild on next lookup
	labels map[string]string
}

// New returns an empty graph.
func New() *State {
	return &State{
		Nodes: make(map[string]Node),
		Edges: make(map[string]Edge),
	}
}

// Clone copies the node and edge maps. Node and Edge are values, so the
// copy shares nothing mutable with the original.
func (s *State) Clone() *State {
	c := &State{
		Nodes:   make(map[string]Node, len(s.Nodes)),
		Edges:   make(map[string]Edge, len(s.Edges)),
		Version: s.Version,
	}
	for id, n := range s.Nodes {
		c.Nodes[id] = n
	}
	for id, e := range s.Edges {
		c.Edges[id] = e
	}
	if s.labels != nil && len(s.labels) == len(s.Nodes) {
		c.labels = make(map[string]string, len(s.labels))
		for k, v := range s.labels {
			c.labels[k] = v
		}
	}
	return c
}

// Reindex drops the label index so the next lookup rebuilds it from Nodes.
func (s *State) Reindex() {
	s.labels = nil
}

func (s *State) ensureIndex() {
	if s.Nodes == nil {
		s.Nodes = make(map[string]Node)
	}
	if s.labels != nil && len(s.labels) == len(s.Nodes) {
		return
	}
	ids := make([]string, 0, len(s.Nodes))
	for id := range s.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.labels = make(map[string]string, len(ids))
	for _, id := range ids {
		key := Normalize(s.Nodes[id].Label)
		if _, taken := s.labels[key]; !taken {
			s.labels[key] = id
		}
	}
}

// Resolve returns the id of the node whose normalized label equals the
// normalized input.
func (s *State) Resolve(label string) (string, bool) {
	key := Normalize(label)
	if key == "" {
		return "", false
	}
	s.ensureIndex()
	id, ok := s.labels[key]
	if ok {
		if n, exists := s.Nodes[id]; !exists || Normalize(n.Label) != key {
			// Nodes was written directly; rebuild once and look again.
			s.labels = nil
			s.ensureIndex()
			id, ok = s.labels[key]
		}
	}
	return id, ok
}

// PutNode stores n under its id, replacing any node already there.
func (s *State) PutNode(n Node) {
	s.ensureIndex()
	if old, ok := s.Nodes[n.ID]; ok {
		if key := Normalize(old.Label); s.labels[key] == n.ID {
			delete(s.labels, key)
		}
	}
	s.Nodes[n.ID] = n
	if key := Normalize(n.Label); key != "" {
		if _, taken := s.labels[key]; !taken {
			s.labels[key] = n.ID
		}
	}
}

// RemoveNode deletes the node and every edge touching it. It reports
// whether the node existed.
func (s *State) RemoveNode(id string) bool {
	n, ok := s.Nodes[id]
	if !ok {
		return false
	}
	s.ensureIndex()
	delete(s.Nodes, id)
	if key := Normalize(n.Label); s.labels[key] == id {
		delete(s.labels, key)
	}
	for eid, e := range s.Edges {
		if e.Source == id || e.Target == id {
			delete(s.Edges, eid)
		}
	}
	return true
}

// AddNode creates a node for label unless one already resolves, in which
// case the existing node is returned with created=false. The id is the
// label's slug, suffixed with -2, -3, ... when the slug is already taken by
// a differently-normalized label.
func (s *State) AddNode(label string, typ NodeType, now time.Time) (node Node, created bool) {
	if id, ok := s.Resolve(label); ok {
		return s.Nodes[id], false
	}
	base := Slug(label)
	if base == "" {
		return Node{}, false
	}
	id := base
	for i := 2; ; i++ {
		if _, taken := s.Nodes[id]; !taken {
			break
		}
		id = base + "-" + strconv.Itoa(i)
	}

	node = Node{
		ID:        id,
		Label:     label,
		Type:      typ,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Nodes[id] = node
	s.labels[Normalize(label)] = id
	return node, true
}

// SetEdge stores source -> target with the weight clamped into range.
// Self-edges and edges touching unknown nodes are refused.
func (s *State) SetEdge(source, target string, weight float64) (Edge, bool) {
	if source == target {
		return Edge{}, false
	}
	if _, ok := s.Nodes[source]; !ok {
		return Edge{}, false
	}
	if _, ok := s.Nodes[target]; !ok {
		return Edge{}, false
	}
	if s.Edges == nil {
		s.Edges = make(map[string]Edge)
	}
	e := Edge{Source: source, Target: target, Weight: ClampWeight(weight)}
	s.Edges[e.ID()] = e
	return e, true
}

// Edge looks up the edge from source to target.
func (s *State) Edge(source, target string) (Edge, bool) {
	e, ok := s.Edges[EdgeID(source, target)]
	return e, ok
}

// ParentEdges returns the edges leaving id, ordered by target.
func (s *State) ParentEdges(id string) []Edge {
	var out []Edge
	for _, e := range s.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Adjacency groups all edges by source, each group ordered by target.
func (s *State) Adjacency() map[string][]Edge {
	adj := make(map[string][]Edge)
	for _, e := range s.Edges {
		adj[e.Source] = append(adj[e.Source], e)
	}
	for _, edges := range adj {
		sort.Slice(edges, func(i, j int) bool { return edges[i].Target < edges[j].Target })
	}
	return adj
}

// SortedNodes returns all nodes ordered by id.
func (s *State) SortedNodes() []Node {
	out := make([]Node, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortedEdges returns all edges ordered by id.
func (s *State) SortedEdges() []Edge {
	out := make([]Edge, 0, len(s.Edges))
	for _, e := range s.Edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Labels returns every node label, ordered by id.
func (s *State) Labels() []string {
	nodes := s.SortedNodes()
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Label
	}
	return out
}

// Validate checks every structural invariant and reports all violations.
func (s *State) Validate() error {
	var errs []error

	seen := make(map[string]string, len(s.Nodes))
	for _, n := range s.SortedNodes() {
		if n.ID == "" {
			errs = append(errs, fmt.Errorf("node with label %q has empty id", n.Label))
		}
		key := Normalize(n.Label)
		if key == "" {
			errs = append(errs, fmt.Errorf("node %s has empty label", n.ID))
			continue
		}
		if other, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("nodes %s and %s share label %q", other, n.ID, key))
		}
		seen[key] = n.ID
	}

	for id, e := range s.Edges {
		if id != e.ID() {
			errs = append(errs, fmt.Errorf("edge %s stored under %s", e.ID(), id))
		}
		if e.Source == e.Target {
			errs = append(errs, fmt.Errorf("edge %s is a self-edge", id))
		}
		if _, ok := s.Nodes[e.Source]; !ok {
			errs = append(errs, fmt.Errorf("edge %s references unknown source %s", id, e.Source))
		}
		if _, ok := s.Nodes[e.Target]; !ok {
			errs = append(errs, fmt.Errorf("edge %s references unknown target %s", id, e.Target))
		}
		if math.IsNaN(e.Weight) || e.Weight < MinWeight || e.Weight > MaxWeight {
			errs = append(errs, fmt.Errorf("edge %s weight %v out of range", id, e.Weight))
		}
	}

	return errors.Join(errs...)
}
