package model

import "github.com/google/uuid"

// NetworkNode is an entity placed in a relationship network, annotated with
// its traversal depth from the center entity.
type NetworkNode struct {
	Entity *Entity `json:"entity"`
	Depth  int     `json:"depth"`
}

// NetworkEdge is a relationship between two nodes of a network
type NetworkEdge struct {
	RelationshipID uuid.UUID        `json:"relationship_id"`
	Source         uuid.UUID        `json:"source"`
	Target         uuid.UUID        `json:"target"`
	Type           RelationshipType `json:"relationship_type"`
	Strength       float64          `json:"strength"`
}

// NetworkGraph is the neighborhood of a center entity up to a maximum depth,
// with edges below a strength threshold pruned.
type NetworkGraph struct {
	Center uuid.UUID     `json:"center"`
	Nodes  []NetworkNode `json:"nodes"`
	Edges  []NetworkEdge `json:"edges"`
}

// Node returns the node for the given entity ID, or nil if absent
func (g *NetworkGraph) Node(entityID uuid.UUID) *NetworkNode {
	for i := range g.Nodes {
		if g.Nodes[i].Entity != nil && g.Nodes[i].Entity.ID == entityID {
			return &g.Nodes[i]
		}
	}
	return nil
}
