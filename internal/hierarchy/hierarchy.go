// Package hierarchy resolves work item anchors against the facility tree.
//
// The tree has arbitrary depth (facility → site → zone → room group → room → sub item).
// Intermediate levels may be synthesized placeholders; they keep the structure intact
// but are left out of display labels.
package hierarchy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/UnknownOlympus/custodian/internal/models"
)

// NodeKind is the level of a hierarchy node.
type NodeKind string

const (
	KindFacility  NodeKind = "facility"
	KindSite      NodeKind = "site"
	KindZone      NodeKind = "zone"
	KindRoomGroup NodeKind = "room_group"
	KindRoom      NodeKind = "room"
	KindSubItem   NodeKind = "sub_item"
)

// labelSeparator joins visible path segments in a location label.
const labelSeparator = " / "

// ErrOrphan is returned when a node, or one of its ancestors, no longer exists
// or the chain never reaches a facility.
var ErrOrphan = errors.New("orphaned hierarchy node")

// Node is one level of the facility tree. Root nodes have an empty ParentID.
type Node struct {
	ID        string
	ParentID  string
	Kind      NodeKind
	Name      string
	Synthetic bool
}

// Tree is an immutable index over a set of nodes.
type Tree struct {
	nodes map[string]Node
}

// NewTree indexes nodes by id. Later duplicates win.
func NewTree(nodes []Node) *Tree {
	index := make(map[string]Node, len(nodes))
	for _, node := range nodes {
		index[node.ID] = node
	}
	return &Tree{nodes: index}
}

// Len returns the number of indexed nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Path returns the chain from the root facility down to the node with the given id.
func (t *Tree) Path(id string) ([]Node, error) {
	var reversed []Node
	seen := make(map[string]struct{})

	for current := id; current != ""; {
		if _, loop := seen[current]; loop {
			return nil, fmt.Errorf("%w: cycle at node %q", ErrOrphan, current)
		}
		seen[current] = struct{}{}

		node, ok := t.nodes[current]
		if !ok {
			return nil, fmt.Errorf("%w: node %q is missing", ErrOrphan, current)
		}
		reversed = append(reversed, node)
		current = node.ParentID
	}

	if len(reversed) == 0 {
		return nil, fmt.Errorf("%w: empty node id", ErrOrphan)
	}

	path := make([]Node, len(reversed))
	for i, node := range reversed {
		path[len(reversed)-1-i] = node
	}

	if path[0].Kind != KindFacility {
		return nil, fmt.Errorf("%w: root %q is a %s, not a facility", ErrOrphan, path[0].ID, path[0].Kind)
	}

	return path, nil
}

// Resolve dispatches on the anchor kind and returns the owning facility and display label.
func (t *Tree) Resolve(anchor models.Anchor) (models.Location, error) {
	var want NodeKind
	switch anchor.Kind {
	case models.AnchorFacility:
		want = KindFacility
	case models.AnchorRoom:
		want = KindRoom
	case models.AnchorSubItem:
		want = KindSubItem
	default:
		return models.Location{}, fmt.Errorf("%w: unknown anchor kind %q", models.ErrValidation, anchor.Kind)
	}

	path, err := t.Path(anchor.NodeID)
	if err != nil {
		return models.Location{}, err
	}

	target := path[len(path)-1]
	if target.Kind != want {
		return models.Location{}, fmt.Errorf(
			"%w: anchor %s points at %q which is a %s", models.ErrValidation, anchor.Kind, target.ID, target.Kind,
		)
	}

	root := path[0]
	return models.Location{
		FacilityID:   root.ID,
		FacilityName: root.Name,
		Label:        Label(path),
	}, nil
}

// Label renders the visible part of a path below the facility. A facility-level
// anchor is labelled with the facility name itself.
func Label(path []Node) string {
	if len(path) == 0 {
		return ""
	}

	parts := make([]string, 0, len(path)-1)
	for _, node := range path[1:] {
		if node.Synthetic || strings.TrimSpace(node.Name) == "" {
			continue
		}
		parts = append(parts, node.Name)
	}

	if len(parts) == 0 {
		return path[0].Name
	}

	return strings.Join(parts, labelSeparator)
}
