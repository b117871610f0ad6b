package narrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator/core/discovery"
	"github.com/siherrmann/narrator/core/pipeline"
	"github.com/siherrmann/narrator/core/search"
	"github.com/siherrmann/narrator/database"
	"github.com/siherrmann/narrator/helper"
	"github.com/siherrmann/narrator/lexicon"
	"github.com/siherrmann/narrator/model"
	loadSql "github.com/siherrmann/narrator/sql"
	"golang.org/x/sync/errgroup"
)

// Narrator wires the storage handlers, the text processing pipeline, the
// relationship discovery engine and the search engine into one entry point
// for indexing and querying manuscript projects.
type Narrator struct {
	DB            *helper.Database
	Files         *database.FilesDBHandler
	Entities      *database.EntitiesDBHandler
	Mentions      *database.MentionsDBHandler
	Chunks        *database.ChunksDBHandler
	Relationships *database.RelationshipsDBHandler
	Pipeline      *pipeline.Pipeline
	Discovery     *discovery.Engine
	Searcher      *search.Engine
	lex           *lexicon.Lexicon
	log           *slog.Logger
}

// NewNarrator connects to the database, loads the SQL functions, creates all
// table handlers and wires the discovery and search engines. The pipeline is
// not set, use SetPipeline, UseDefaultPipeline or UsePatternPipeline before
// indexing. embeddingDim is the dimension of the chunk embedding vectors.
func NewNarrator(config *helper.DatabaseConfiguration, embeddingDim int) (*Narrator, error) {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	db := helper.NewDatabase("narrator", config, logger)

	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Handlers in foreign key order, files and entities carry the rest
	files, err := database.NewFilesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create files handler", err)
	}
	entities, err := database.NewEntitiesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}
	chunks, err := database.NewChunksDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}
	mentions, err := database.NewMentionsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create mentions handler", err)
	}
	relationships, err := database.NewRelationshipsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create relationships handler", err)
	}

	lex, err := lexicon.New()
	if err != nil {
		return nil, helper.NewError("load lexicon", err)
	}

	discoveryEngine, err := discovery.NewEngine(entities, chunks, relationships, lex, model.DefaultDiscoveryConfig(), logger)
	if err != nil {
		return nil, helper.NewError("create discovery engine", err)
	}
	searchEngine, err := search.NewEngine(chunks, entities, nil, lex, model.DefaultSearchConfig(), logger)
	if err != nil {
		return nil, helper.NewError("create search engine", err)
	}

	return &Narrator{
		DB:            db,
		Files:         files,
		Entities:      entities,
		Mentions:      mentions,
		Chunks:        chunks,
		Relationships: relationships,
		Discovery:     discoveryEngine,
		Searcher:      searchEngine,
		lex:           lex,
		log:           logger,
	}, nil
}

// SetPipeline sets the processing pipeline. The search engine follows the
// pipeline's embedder, so queries and chunks are embedded by the same model.
func (n *Narrator) SetPipeline(p *pipeline.Pipeline) {
	n.Pipeline = p
	if p != nil {
		n.Searcher.SetEmbedder(p.Embedder)
	} else {
		n.Searcher.SetEmbedder(nil)
	}
}

// SetEmbedder sets the embedding function on the pipeline and the search
// engine together.
func (n *Narrator) SetEmbedder(embedder pipeline.EmbedFunc) {
	if n.Pipeline != nil {
		n.Pipeline.SetEmbedder(embedder)
	}
	n.Searcher.SetEmbedder(embedder)
}

// UseDefaultPipeline wires the default word chunker, the NER tagger and the
// sentence transformer embedder. The models are downloaded on first use, so
// the initial call can take a while.
func (n *Narrator) UseDefaultPipeline() error {
	tagger, err := pipeline.DefaultTagger()
	if err != nil {
		return helper.NewError("create default tagger", err)
	}
	extractor, err := pipeline.NewExtractor(tagger, n.lex, model.DefaultExtractorConfig())
	if err != nil {
		return helper.NewError("create extractor", err)
	}
	p, err := pipeline.NewPipeline(pipeline.WordChunker(model.DefaultSegmenterConfig()), extractor)
	if err != nil {
		return helper.NewError("create pipeline", err)
	}
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}
	p.SetEmbedder(embedder)

	n.SetPipeline(p)
	return nil
}

// UsePatternPipeline wires a pipeline that runs on the pattern heuristics
// alone: no NER model, no embeddings, no downloads. Search degrades to
// lexical ranking until an embedder is set.
func (n *Narrator) UsePatternPipeline() error {
	extractor, err := pipeline.NewExtractor(nil, n.lex, model.DefaultExtractorConfig())
	if err != nil {
		return helper.NewError("create extractor", err)
	}
	p, err := pipeline.NewPipeline(pipeline.WordChunker(model.DefaultSegmenterConfig()), extractor)
	if err != nil {
		return helper.NewError("create pipeline", err)
	}

	n.SetPipeline(p)
	return nil
}

// IndexFile runs the full indexing pass over one file: segmentation, entity
// extraction, mention tracking, optional embedding and storage. The file row
// is inserted first, so a later processing failure leaves it marked failed.
func (n *Narrator) IndexFile(ctx context.Context, file *model.File) (*model.FileStatus, error) {
	if n.Pipeline == nil {
		return nil, helper.NewError("index file", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	if file == nil {
		return nil, helper.NewError("index file", fmt.Errorf("file is nil"))
	}
	if file.ProjectID == uuid.Nil {
		return nil, helper.NewError("index file", fmt.Errorf("project id is nil"))
	}
	if strings.TrimSpace(file.Content) == "" {
		return nil, helper.NewError("index file", fmt.Errorf("file content is empty"))
	}

	file.WordCount = len(strings.Fields(file.Content))
	err := n.Files.InsertFile(file)
	if err != nil {
		return nil, helper.NewError("insert file", err)
	}

	result, err := n.Pipeline.Process(ctx, file)
	if err != nil {
		n.markFileFailed(file)
		return nil, helper.NewError("process file", err)
	}

	// insert_entity merges into existing project entities, so the ids the
	// pipeline assigned are remapped to the canonical rows before mentions
	// and chunks are stored.
	canonical := map[uuid.UUID]uuid.UUID{}
	for _, entity := range result.Entities {
		pipelineID := entity.ID
		err := n.Entities.InsertEntity(entity)
		if err != nil {
			n.markFileFailed(file)
			return nil, helper.NewError(fmt.Sprintf("insert entity %s", entity.Name), err)
		}
		canonical[pipelineID] = entity.ID
	}

	for _, mention := range result.Mentions {
		if id, ok := canonical[mention.EntityID]; ok {
			mention.EntityID = id
		}
		err := n.Mentions.InsertMention(mention)
		if err != nil {
			n.markFileFailed(file)
			return nil, helper.NewError("insert mention", err)
		}
	}

	for i, chunk := range result.Chunks {
		if err := ctx.Err(); err != nil {
			n.markFileFailed(file)
			return nil, err
		}
		for j, entityID := range chunk.EntitiesMentioned {
			if id, ok := canonical[entityID]; ok {
				chunk.EntitiesMentioned[j] = id
			}
		}
		err := n.Chunks.InsertChunk(chunk)
		if err != nil {
			n.markFileFailed(file)
			return nil, helper.NewError(fmt.Sprintf("insert chunk %d", i), err)
		}
	}

	if result.EmbeddingFailures > 0 {
		n.log.Warn("Stored chunks without embeddings",
			slog.String("file_id", file.ID.String()),
			slog.Int("num_chunks", result.EmbeddingFailures),
		)
	}

	err = n.Files.UpdateFileStatus(file.ID, model.ProcessingCompleted)
	if err != nil {
		return nil, helper.NewError("update file status", err)
	}
	file.Status = model.ProcessingCompleted

	n.log.Info("Indexed file",
		slog.String("file_id", file.ID.String()),
		slog.String("name", file.Name),
		slog.Int("num_chunks", len(result.Chunks)),
		slog.Int("num_entities", len(result.Entities)),
		slog.Int("num_mentions", len(result.Mentions)),
	)

	return &model.FileStatus{
		FileID:   file.ID,
		Name:     file.Name,
		Status:   model.ProcessingCompleted,
		Chunks:   len(result.Chunks),
		Entities: len(result.Entities),
		Mentions: len(result.Mentions),
	}, nil
}

// markFileFailed records the failed status, the indexing error itself is
// reported to the caller.
func (n *Narrator) markFileFailed(file *model.File) {
	if file.ID == uuid.Nil {
		return
	}
	err := n.Files.UpdateFileStatus(file.ID, model.ProcessingFailed)
	if err != nil {
		n.log.Warn("Failed to mark file as failed", slog.String("file_id", file.ID.String()))
		return
	}
	file.Status = model.ProcessingFailed
}

// IndexOptions control a project indexing run.
type IndexOptions struct {
	// Parallelism is the number of files indexed concurrently, minimum 1.
	Parallelism int
	// SkipDiscovery leaves relationship discovery to the caller.
	SkipDiscovery bool
	// Progress is called after each finished file with (done, total).
	Progress func(done int, total int)
}

// IndexProject indexes the given files into the project, then runs
// relationship discovery over the result. Failures are per file: a file that
// cannot be processed is marked failed in the report and the run continues
// with the remaining files. Only a cancelled context aborts the run.
func (n *Narrator) IndexProject(ctx context.Context, projectID uuid.UUID, files []*model.File, options *IndexOptions) (*model.IndexReport, error) {
	if n.Pipeline == nil {
		return nil, helper.NewError("index project", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	if projectID == uuid.Nil {
		return nil, helper.NewError("index project", fmt.Errorf("project id is nil"))
	}
	if len(files) == 0 {
		return nil, helper.NewError("index project", fmt.Errorf("no files to index"))
	}

	opts := IndexOptions{}
	if options != nil {
		opts = *options
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}

	report := &model.IndexReport{
		ProjectID: projectID,
		Files:     make([]model.FileStatus, len(files)),
	}

	var mu sync.Mutex
	done := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Parallelism)
	for i, file := range files {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			file.ProjectID = projectID
			status, err := n.IndexFile(groupCtx, file)
			if err != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				n.log.Warn("File indexing failed",
					slog.String("name", file.Name),
					slog.String("error", err.Error()),
				)
				status = &model.FileStatus{
					FileID:  file.ID,
					Name:    file.Name,
					Status:  model.ProcessingFailed,
					Message: err.Error(),
				}
			}

			mu.Lock()
			report.Files[i] = *status
			done++
			if opts.Progress != nil {
				opts.Progress(done, len(files))
			}
			mu.Unlock()
			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, helper.NewError("index project", err)
	}

	for _, status := range report.Files {
		if status.Status == model.ProcessingCompleted {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	if !opts.SkipDiscovery {
		_, err := n.Discovery.DiscoverProject(ctx, projectID, false, nil)
		if err != nil {
			return report, helper.NewError("discover relationships", err)
		}
	}

	n.log.Info("Indexed project",
		slog.String("project_id", projectID.String()),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
	)

	return report, nil
}

// ExtractEntities runs entity extraction over text and merges the canonical
// entities into the project. Candidates below the pipeline's configured
// threshold are already dropped during extraction, a higher
// confidenceThreshold narrows the result further.
func (n *Narrator) ExtractEntities(text string, projectID uuid.UUID, confidenceThreshold float64) ([]*model.Entity, error) {
	if n.Pipeline == nil {
		return nil, helper.NewError("extract entities", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	if projectID == uuid.Nil {
		return nil, helper.NewError("extract entities", fmt.Errorf("project id is nil"))
	}

	extracted, err := n.Pipeline.Extractor.Extract(text)
	if err != nil {
		return nil, helper.NewError("extract entities", err)
	}

	entities := []*model.Entity{}
	for _, entity := range extracted {
		if entity.ConfidenceScore < confidenceThreshold {
			continue
		}
		entity.ProjectID = projectID
		err := n.Entities.InsertEntity(entity)
		if err != nil {
			return nil, helper.NewError(fmt.Sprintf("insert entity %s", entity.Name), err)
		}
		entities = append(entities, entity)
	}

	return entities, nil
}

// CreateDetailedMentions resolves every occurrence of the given entities in
// text to exact positions and stores them for the file.
func (n *Narrator) CreateDetailedMentions(entities []*model.Entity, text string, fileID uuid.UUID, scenes []model.Scene) ([]*model.Mention, error) {
	if fileID == uuid.Nil {
		return nil, helper.NewError("create detailed mentions", fmt.Errorf("file id is nil"))
	}

	mentions, err := pipeline.TrackMentions(entities, text, fileID, scenes)
	if err != nil {
		return nil, helper.NewError("track mentions", err)
	}

	for _, mention := range mentions {
		err := n.Mentions.InsertMention(mention)
		if err != nil {
			return nil, helper.NewError("insert mention", err)
		}
	}

	return mentions, nil
}

// DiscoverRelationshipsForProject scans the project's chunks for entity
// co-occurrence and persists the discovered relationships. With force the
// project's existing relationships are deleted and rebuilt from scratch,
// otherwise the run merges into the stored counts.
func (n *Narrator) DiscoverRelationshipsForProject(ctx context.Context, projectID uuid.UUID, force bool) ([]*model.Relationship, error) {
	return n.Discovery.DiscoverProject(ctx, projectID, force, nil)
}

// DiscoverRelationshipsForEntities limits discovery to pairs touching at
// least one of the given entities.
func (n *Narrator) DiscoverRelationshipsForEntities(ctx context.Context, projectID uuid.UUID, entityIDs []uuid.UUID) ([]*model.Relationship, error) {
	return n.Discovery.DiscoverEntities(ctx, projectID, entityIDs)
}

// CalculateRelationshipStrength returns the stored strength of a relationship
// scaled by the given factors, 0.0 if the relationship does not exist.
func (n *Narrator) CalculateRelationshipStrength(relationshipID uuid.UUID, factors map[string]float64) float64 {
	return n.Discovery.CalculateStrength(relationshipID, factors)
}

// GetEntityRelationshipNetwork expands the relationship graph around an
// entity up to maxDepth hops, pruning edges below minStrength.
func (n *Narrator) GetEntityRelationshipNetwork(ctx context.Context, entityID uuid.UUID, maxDepth int, minStrength float64) (*model.NetworkGraph, error) {
	return n.Discovery.Network(ctx, entityID, maxDepth, minStrength)
}

// Search ranks the project's chunks against the query, combining embedding
// similarity, lexical match and an entity bonus.
func (n *Narrator) Search(ctx context.Context, query string, filters model.SearchFilters) ([]*model.SearchResult, error) {
	return n.Searcher.Search(ctx, query, filters)
}

// Autocomplete suggests completions for a partial query from the project's
// entity names and previously run searches.
func (n *Narrator) Autocomplete(projectID uuid.UUID, partial string, limit int) ([]string, error) {
	return n.Searcher.Autocomplete(projectID, partial, limit)
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
func (n *Narrator) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return n.Chunks.ChangeIndexType(ctx, indexType, params)
}

// DeleteFile removes a file with its chunks and mentions.
func (n *Narrator) DeleteFile(fileID uuid.UUID) error {
	err := n.Files.DeleteFile(fileID)
	if err != nil {
		return helper.NewError("delete file", err)
	}

	n.log.Info("Deleted file", slog.String("file_id", fileID.String()))
	return nil
}

// DeleteProject removes all files, chunks, entities, mentions and
// relationships of a project.
func (n *Narrator) DeleteProject(projectID uuid.UUID) error {
	err := n.Files.DeleteProjectData(projectID)
	if err != nil {
		return helper.NewError("delete project", err)
	}

	n.log.Info("Deleted project data", slog.String("project_id", projectID.String()))
	return nil
}

// Close closes the database connection
func (n *Narrator) Close() error {
	if n.DB != nil && n.DB.Instance != nil {
		return n.DB.Instance.Close()
	}
	return nil
}
