package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/google/uuid"
	"github.com/siherrmann/narrator"
	"github.com/siherrmann/narrator/helper"
	"github.com/siherrmann/narrator/model"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// The project ID is fixed so re-runs against the persistent database extend
// the same project instead of starting over.
var projectID = uuid.MustParse("7e6c2b1a-4f3d-4e8a-9c5b-2d1e0f9a8b7c")

var chapters = map[string]string{
	"01 - The Salt Gate.txt": `The harbor bell of Veloria rang twice before dawn, and Mara was already on the pier. She had spent the night going through the old harbormaster's ledger page by page, and what she found there had kept her from sleep better than any watch bell. Brennis arrived with the first light, carrying two cups of bitter tea and the look of a man who already regretted asking.

"You read all of it," he said.

"Twice." Mara handed him the cup and kept her eyes on the customs house across the water. "Seventeen ships cleared this harbor last winter with manifests signed by men who were dead before the ink dried. Someone in the Registry has been selling signatures, Brennis. Someone with keys."

Brennis drank his tea and said nothing for a long while. He had worked the salt gate for nine years and knew every clerk, every runner, every guard who took a coin to look away. "If you take this to the harbor council," he said at last, "you will need more than a ledger. You will need the clerk who copied it."

"Then we find the clerk." Mara folded the ledger into its oilcloth and stood. "Ask at the Registry. Quietly. I will take the boat around to the breakwater and count what is actually sitting in those holds."

They parted at the foot of the pier, Mara south to the water, Brennis north through the salt gate, both of them carrying halves of the same dangerous question up into the waking streets of Veloria.`,

	"02 - The Registry Clerk.txt": `The Registry of Veloria kept its records in a long lamplit hall that smelled of dust and sealing wax. Brennis found Odran at the third desk from the window, exactly where he had sat for twenty years, copying manifests in a hand so fine the harbor council had twice refused to let him retire.

"I need a name," Brennis said quietly, laying a silver piece on the desk.

Odran did not touch the coin. "You need seventeen names," he said, "and I copied every one of them." The old clerk's hands were steady but his voice was not. "I knew the signatures were wrong, Brennis. A dead man's hand does not slope. I copied them anyway, because the man who brought them told me what happens to clerks who ask questions, and then he told me where my sister lives."

Brennis sat down slowly across from him. Through the tall window he could see the breakwater, and a small boat working along the anchored ships, and he thought of Mara out there counting cargo that did not exist.

"Mara has the ledger," he said. "The original, with the false manifests. If you copy it into the public rolls, with your own statement beside it, the council cannot bury it and neither can your visitor."

Odran looked at the coin, and at his fine steady hands, and out the window at the small stubborn boat. "Tonight," he said. "Bring her and the ledger after the second bell. The side door will be open." He pushed the silver piece back across the desk. "Not for coin, Brennis. For my own name in the rolls, beside the truth for once."`,

	"03 - Public Record.txt": `They came to the Registry by the old stair, Mara with the ledger wrapped flat against her ribs, Brennis a hundred slow steps behind her watching the street. The side door stood open and candlelit, and Odran was waiting with fresh pages already ruled.

The copying took until the tide turned. Mara read each false manifest aloud, Brennis matched it against what she had counted in the holds, and Odran set it all down in triplicate in his fine unhurried hand, the true cargo beside the sworn lie, page after page after page. Nobody spoke beyond the work. Somewhere below them the harbor bell of Veloria rang the small hours across the sleeping roofs, and the candles burned down, and the pile of finished pages grew.

Dawn came grey through the tall window as Odran signed the last sheet and set his seal beside the signature. "Public record," he said, and his voice finally shook. "Whatever happens to the three of us now, it is written, and it is theirs to explain."

Mara took one copy for the harbor council and one for the capital, and left the third in the rolls where any citizen of Veloria could ask to read it. On the pier the morning watch was changing, and the gulls were loud over the fishing boats, and the customs house lamps were going out one by one, as if the building itself had decided the long night was over.

"They will come for us," Brennis said, without much fear in it.

"Let them come to the Registry," Mara said, "and stand in line." She pressed the folded chart into his hands, the one from the night of the fire, its work done at last. "Keep it. Men who finish things should keep something to remember the start."`,
}

// startPostgresContainer starts a PostgreSQL container with pgvector and a
// bind-mounted data directory, so the indexed project survives between runs.
func startPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	dataDir := "./data"
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create data directory: %w", err)
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get absolute path for data directory: %w", err)
	}

	// When the database already exists, PostgreSQL doesn't re-initialize,
	// so the ready message only appears once instead of twice
	pgVersionFile := filepath.Join(absDataDir, "PG_VERSION")
	_, err = os.Stat(pgVersionFile)
	dbExists := err == nil

	waitOccurrences := 2
	if dbExists {
		waitOccurrences = 1
		fmt.Printf("Using existing persistent database in: %s\n", absDataDir)
	} else {
		fmt.Printf("Creating new persistent database in: %s\n", absDataDir)
	}

	options := []testcontainers.ContainerCustomizer{
		postgres.WithDatabase("database"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(waitOccurrences),
		),
		testcontainers.WithHostConfigModifier(func(hc *container.HostConfig) {
			hc.Mounts = append(hc.Mounts, mount.Mount{
				Type:   mount.TypeBind,
				Source: absDataDir,
				Target: "/var/lib/postgresql/data",
			})
		}),
	}

	pgContainer, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		options...,
	)
	if err != nil {
		return nil, "", fmt.Errorf("error starting postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("error getting connection string: %w", err)
	}

	u, err := url.Parse(connStr)
	if err != nil {
		return nil, "", fmt.Errorf("error parsing connection string: %v", err)
	}

	return pgContainer.Terminate, u.Port(), nil
}

func main() {
	teardown, dbPort, err := startPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

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

	fmt.Println("Setting up pipeline with NER tagging and embeddings...")
	if err := n.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	ctx := context.Background()

	// Write the chapters to disk so the example exercises the file-based API
	tmpDir, err := os.MkdirTemp("", "manuscript-chapters-*")
	if err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// Skip chapters that a previous run already indexed
	existing, err := indexedFiles(n)
	if err != nil {
		log.Printf("Warning: could not check existing files: %v", err)
		existing = make(map[string]bool)
	}
	if len(existing) > 0 {
		fmt.Printf("Found %d chapters already indexed\n", len(existing))
	}

	var files []*model.File
	skipped := 0
	for fileName, content := range chapters {
		name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
		if existing[name] {
			skipped++
			continue
		}

		chapterPath := filepath.Join(tmpDir, fileName)
		if err := os.WriteFile(chapterPath, []byte(content), 0644); err != nil {
			log.Printf("Warning: failed to write %s: %v, skipping...", fileName, err)
			continue
		}

		file, err := model.NewFileFromPath(chapterPath, projectID, model.Metadata{
			"series": "The Harbor Ledger",
		})
		if err != nil {
			log.Printf("Warning: failed to read %s: %v, skipping...", fileName, err)
			continue
		}
		files = append(files, file)
	}

	if len(files) > 0 {
		fmt.Printf("Indexing %d chapters (%d skipped)...\n", len(files), skipped)
		report, err := n.IndexProject(ctx, projectID, files, &narrator.IndexOptions{
			Parallelism: 2,
			Progress: func(done int, total int) {
				fmt.Printf("  %d/%d chapters done\n", done, total)
			},
		})
		if err != nil {
			log.Fatalf("Failed to index project: %v", err)
		}

		fmt.Printf("\nIndexed %d chapters, %d failed:\n", report.Succeeded, report.Failed)
		for _, status := range report.Files {
			fmt.Printf("  %-25s %-10s chunks: %d, entities: %d, mentions: %d\n",
				status.Name, status.Status, status.Chunks, status.Entities, status.Mentions)
		}
	} else {
		fmt.Println("All chapters already indexed, refreshing relationships...")
		if _, err := n.DiscoverRelationshipsForProject(ctx, projectID, false); err != nil {
			log.Fatalf("Failed to discover relationships: %v", err)
		}
	}

	// Rebuild the vector index now that the corpus has grown
	err = n.ChangeIndexType(ctx, "hnsw", map[string]interface{}{
		"m":               16,
		"ef_construction": 64,
	})
	if err != nil {
		log.Printf("Warning: Index change failed (this is okay for small datasets): %v", err)
	}

	// Cast of the project so far
	entities, err := n.Entities.SelectEntitiesByProject(projectID, nil)
	if err != nil {
		log.Fatalf("Failed to load entities: %v", err)
	}
	names := make(map[uuid.UUID]string, len(entities))
	fmt.Println("\n=== Cast ===")
	for _, entity := range entities {
		names[entity.ID] = entity.Name
		fmt.Printf("  %-10s %-20s mentions: %d\n", entity.Type, entity.Name, entity.MentionCount)
	}

	relationships, err := n.Relationships.SelectRelationshipsByProject(projectID)
	if err != nil {
		log.Fatalf("Failed to load relationships: %v", err)
	}
	fmt.Println("\n=== Relationships ===")
	for _, relationship := range relationships {
		fmt.Printf("  %s --%s--> %s (strength: %.2f, co-occurrences: %d)\n",
			names[relationship.SourceEntityID], relationship.Type, names[relationship.TargetEntityID],
			relationship.Strength, relationship.CoOccurrenceCount)
		if len(relationship.ContextSnippets) > 0 {
			fmt.Printf("    e.g. %q\n", relationship.ContextSnippets[0])
		}
	}

	// A few searches across the whole project
	for _, queryText := range []string{
		"Who copied the false manifests into the public rolls?",
		"What did Mara find in the ledger?",
	} {
		fmt.Printf("\n=== Searching: %s ===\n", queryText)
		results, err := n.Search(ctx, queryText, model.SearchFilters{ProjectID: projectID, TopK: 3})
		if err != nil {
			log.Printf("Search error: %v", err)
			continue
		}
		for i, result := range results {
			content := result.Chunk.Content
			if len(content) > 140 {
				content = content[:140] + "..."
			}
			fmt.Printf("  [%d] score %.4f: %s\n", i+1, result.Score, content)
		}
	}

	// Autocomplete draws on entity names and past queries
	suggestions, err := n.Autocomplete(projectID, "ma", 5)
	if err != nil {
		log.Printf("Autocomplete error: %v", err)
	} else {
		fmt.Printf("\nAutocomplete \"ma\": %v\n", suggestions)
	}

	// Expand the network around the most mentioned character
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

	fmt.Println("\nManuscript example completed, data persists in ./data for the next run.")
}

// indexedFiles returns the names of files already indexed into the project.
func indexedFiles(n *narrator.Narrator) (map[string]bool, error) {
	files, err := n.Files.SelectFilesByProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}

	existing := make(map[string]bool, len(files))
	for _, file := range files {
		if file.Status == model.ProcessingCompleted {
			existing[file.Name] = true
		}
	}
	return existing, nil
}
