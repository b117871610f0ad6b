package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator/model"
)

// GraphStore defines the interface for the store reads a network traversal needs
type GraphStore interface {
	SelectEntity(id uuid.UUID) (*model.Entity, error)
	SelectRelationshipsByEntity(entityID uuid.UUID, minStrength float64) ([]*model.Relationship, error)
}

// hop tracks one queued entity and its distance from the center
type hop struct {
	entityID uuid.UUID
	depth    int
}

// Network performs a breadth-first expansion from a center entity up to
// maxDepth hops. Relationships below minStrength are pruned at the store,
// nodes and edges are de-duplicated, and every edge in the result connects
// two returned nodes.
func Network(ctx context.Context, store GraphStore, centerID uuid.UUID, maxDepth int, minStrength float64) (*model.NetworkGraph, error) {
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if centerID == uuid.Nil {
		return nil, fmt.Errorf("center entity id must not be nil")
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("max depth must not be negative, got %d", maxDepth)
	}

	center, err := store.SelectEntity(centerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load center entity: %w", err)
	}

	network := &model.NetworkGraph{Center: centerID}

	entities := map[uuid.UUID]*model.Entity{centerID: center}
	visited := map[uuid.UUID]bool{centerID: true}
	seenEdges := make(map[uuid.UUID]bool)
	queue := []hop{{entityID: centerID, depth: 0}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]

		network.Nodes = append(network.Nodes, model.NetworkNode{
			Entity: entities[current.entityID],
			Depth:  current.depth,
		})

		// Stop expanding at the depth limit
		if current.depth >= maxDepth {
			continue
		}

		relationships, err := store.SelectRelationshipsByEntity(current.entityID, minStrength)
		if err != nil {
			return nil, fmt.Errorf("failed to load relationships: %w", err)
		}

		for _, relationship := range relationships {
			otherID := relationship.Other(current.entityID)
			if otherID == uuid.Nil {
				continue
			}

			if !visited[otherID] {
				other, err := store.SelectEntity(otherID)
				if err != nil {
					// Skip neighbors that cannot be resolved
					continue
				}
				visited[otherID] = true
				entities[otherID] = other
				queue = append(queue, hop{entityID: otherID, depth: current.depth + 1})
			}

			if seenEdges[relationship.ID] {
				continue
			}
			seenEdges[relationship.ID] = true
			network.Edges = append(network.Edges, model.NetworkEdge{
				RelationshipID: relationship.ID,
				Source:         relationship.SourceEntityID,
				Target:         relationship.TargetEntityID,
				Type:           relationship.Type,
				Strength:       relationship.Strength,
			})
		}
	}

	return network, nil
}

// Neighbors returns the entities directly linked to the given entity with at
// least the given strength, excluding the entity itself.
func Neighbors(ctx context.Context, store GraphStore, entityID uuid.UUID, minStrength float64) ([]*model.Entity, error) {
	network, err := Network(ctx, store, entityID, 1, minStrength)
	if err != nil {
		return nil, err
	}

	neighbors := make([]*model.Entity, 0, len(network.Nodes)-1)
	for _, node := range network.Nodes[1:] {
		neighbors = append(neighbors, node.Entity)
	}

	return neighbors, nil
}
