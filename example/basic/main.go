package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator"
	"github.com/siherrmann/narrator/helper"
	"github.com/siherrmann/narrator/model"
)

const sampleManuscript = `"Stay off the quay until the harbor bell rings twice," Mara said, pressing the folded chart into Brennis's hands. "The tide runs wrong tonight, and the watch has doubled since the fire."

Brennis tucked the chart under his coat and studied her face in the lantern light. He had known Mara for eleven years, since the winter she pulled him half-drowned from the nets below Veloria's sea wall, and he had never once seen her afraid. He saw it now.

"You found the ledger," he said quietly.

Mara nodded toward the warehouse at the end of the pier. "Behind the salt barrels, exactly where the old harbormaster promised it would be. Every bribe, every false manifest, every ship that cleared Veloria with a hold full of nothing. Names, Brennis. The kind of names that end careers in the capital."

A gull screamed over the black water. Somewhere beyond the breakwater a ship's bell answered it, thin and far away. Brennis counted the lamps burning along the customs house roof and found two more than there should have been.

"They know," he said. "Mara, they know you have it."

"They suspect," she corrected. "If they knew, you and I would already be floating in the harbor. That is why the chart goes with you tonight, through the salt gate and up the old stair, while I walk into the customs house smiling and let them search my boat down to the bilge."

Brennis wanted to argue, and she watched him decide against it, the way he always did when her plan was better than his objection. He asked only one question. "Where do I carry it?"

"To the Registry of Veloria, to a clerk named Odran who owes me a life. He will copy it into the public rolls before dawn. After that it will not matter what happens to the original, or to me." Mara smiled then, the old smile from before the fire, and for a moment the pier felt like it had in the easy years. "Walk slowly. Men who hurry get remembered."

She left him at the foot of the pier and walked north toward the customs house, her boots loud on the wet boards, her shadow stretching long under the doubled lamps. Brennis watched until the dark took her, then turned south with the chart pressed flat against his ribs.

The salt gate stood unguarded, as Mara had promised. The old stair climbed crooked between leaning storehouses, past shuttered windows and the smell of tar, up toward the lamplit bulk of the Registry. Brennis climbed without hurrying, counting steps the way Mara counted lamps, and somewhere below him the harbor bell of Veloria rang once, then twice, clean and unhurried over the sleeping roofs.

Odran was waiting with the side door open and a candle already burning. By the time the tide turned, the ledger's names were public record, copied fair in triplicate, and no fire in any warehouse could unwrite them. Brennis signed the witness line and thought of Mara smiling in the customs house, letting them search, letting them find nothing at all.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	n, err := narrator.NewNarrator(dbConfig, 384)
	if err != nil {
		log.Fatalf("Failed to create narrator: %v", err)
	}
	defer n.Close()

	// Set up the default pipeline (NER tagging + embeddings).
	// The models are downloaded on first use.
	if err := n.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	ctx := context.Background()
	projectID := uuid.New()

	file := &model.File{
		ProjectID: projectID,
		Name:      "The Harbor Ledger, Chapter One",
		Content:   sampleManuscript,
		Metadata: model.Metadata{
			"author":  "Example Author",
			"chapter": 1,
		},
	}

	fmt.Println("Indexing manuscript...")
	status, err := n.IndexFile(ctx, file)
	if err != nil {
		log.Fatalf("Failed to index file: %v", err)
	}
	fmt.Printf("File indexed with ID: %s\n", file.ID)
	fmt.Printf("Chunks: %d, entities: %d, mentions: %d\n", status.Chunks, status.Entities, status.Mentions)

	// Show what the extractor found
	entities, err := n.Entities.SelectEntitiesByProject(projectID, nil)
	if err != nil {
		log.Fatalf("Failed to load entities: %v", err)
	}
	names := make(map[uuid.UUID]string, len(entities))
	fmt.Println("\n=== Entities ===")
	for _, entity := range entities {
		names[entity.ID] = entity.Name
		fmt.Printf("  %-10s %-20s mentions: %d, confidence: %.2f\n",
			entity.Type, entity.Name, entity.MentionCount, entity.ConfidenceScore)
	}

	// Relationships come from entity co-occurrence across the chunks
	fmt.Println("\n=== Discovering Relationships ===")
	relationships, err := n.DiscoverRelationshipsForProject(ctx, projectID, false)
	if err != nil {
		log.Fatalf("Failed to discover relationships: %v", err)
	}
	for _, relationship := range relationships {
		fmt.Printf("  %s --%s--> %s (strength: %.2f, co-occurrences: %d)\n",
			names[relationship.SourceEntityID], relationship.Type, names[relationship.TargetEntityID],
			relationship.Strength, relationship.CoOccurrenceCount)
	}

	// Search combines embedding similarity, keyword match and entity bonus
	queryText := "Who carried the ledger to the registry?"
	fmt.Printf("\n=== Searching: %s ===\n", queryText)
	results, err := n.Search(ctx, queryText, model.SearchFilters{ProjectID: projectID})
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}
	printResults(results)

	// Expand the relationship network around the most mentioned character
	characterType := model.EntityTypeCharacter
	characters, err := n.Entities.SelectEntitiesByProject(projectID, &characterType)
	if err != nil {
		log.Fatalf("Failed to load characters: %v", err)
	}
	if len(characters) > 0 {
		center := characters[0]
		fmt.Printf("\n=== Network around %s ===\n", center.Name)
		graph, err := n.GetEntityRelationshipNetwork(ctx, center.ID, 2, 0.0)
		if err != nil {
			log.Fatalf("Failed to build network: %v", err)
		}
		for _, node := range graph.Nodes {
			fmt.Printf("  node: %-20s (depth %d)\n", node.Entity.Name, node.Depth)
		}
		for _, edge := range graph.Edges {
			fmt.Printf("  edge: %s --%s--> %s (strength: %.2f)\n",
				names[edge.Source], edge.Type, names[edge.Target], edge.Strength)
		}
	}

	fmt.Println("\nBasic example completed successfully!")
}

func printResults(results []*model.SearchResult) {
	fmt.Printf("Found %d results:\n", len(results))
	for i, result := range results {
		if i >= 3 {
			break // Show only first 3
		}
		fmt.Printf("\n  Result %d:\n", i+1)
		fmt.Printf("    Score: %.4f (similarity: %.4f, lexical: %.4f, entity bonus: %.2f)\n",
			result.Score, result.SimilarityScore, result.LexicalScore, result.EntityBonus)
		for _, highlight := range result.Highlights {
			fmt.Printf("    Highlight: %s\n", highlight)
		}
		content := result.Chunk.Content
		if len(content) > 120 {
			content = content[:120] + "..."
		}
		fmt.Printf("    Content: %s\n", content)
	}
}
