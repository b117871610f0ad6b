package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator/model"
)

// Segment is one contiguous slice of the source text produced by a
// SegmentFunc. Offsets are absolute positions in the original text, so
// Content == text[StartOffset:EndOffset] always holds.
type Segment struct {
	Content     string
	StartOffset int
	EndOffset   int
	Index       int
	WordCount   int
}

// SegmentFunc splits text into ordered segments. startOffset and startIndex
// shift the produced offsets and indices so processing can resume mid-file.
type SegmentFunc func(text string, startOffset int, startIndex int) ([]Segment, error)

// TagSpan is one labeled span found by a tagger, with offsets into the
// tagged text.
type TagSpan struct {
	Label string
	Text  string
	Start int
	End   int
	Score float64
}

// TagFunc finds named entity spans in text. Implementations wrap a NER
// backend; the extractor only depends on the returned spans.
type TagFunc func(text string) ([]TagSpan, error)

// EmbedFunc converts text into a vector embedding.
type EmbedFunc func(text string) ([]float32, error)

// Pipeline turns raw manuscript text into chunks, entities and mentions.
// The Embedder is optional, Segmenter and Extractor are required.
type Pipeline struct {
	Segmenter SegmentFunc
	Extractor *Extractor
	Embedder  EmbedFunc
}

// Result bundles everything one Process run produced for a file.
// EmbeddingFailures counts chunks left without a vector because the
// embedder returned an error for them.
type Result struct {
	Chunks            []*model.TextChunk
	Entities          []*model.Entity
	Mentions          []*model.Mention
	EmbeddingFailures int
}

// NewPipeline creates a Pipeline without an embedder.
func NewPipeline(segmenter SegmentFunc, extractor *Extractor) (*Pipeline, error) {
	if segmenter == nil {
		return nil, fmt.Errorf("segmenter is nil")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is nil")
	}
	return &Pipeline{
		Segmenter: segmenter,
		Extractor: extractor,
	}, nil
}

// SetEmbedder adds an embedder to the pipeline. Passing nil disables
// embedding again.
func (p *Pipeline) SetEmbedder(embedder EmbedFunc) {
	p.Embedder = embedder
}

// Process runs segmentation, entity extraction, mention tracking and
// optional embedding over the file content. An embedding failure leaves the
// affected chunk without a vector instead of failing the whole file.
func (p *Pipeline) Process(ctx context.Context, file *model.File) (*Result, error) {
	if file == nil {
		return nil, fmt.Errorf("file is nil")
	}
	if p.Segmenter == nil {
		return nil, fmt.Errorf("segmenter is nil")
	}
	if p.Extractor == nil {
		return nil, fmt.Errorf("extractor is nil")
	}

	segments, err := p.Segmenter(file.Content, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to segment text: %w", err)
	}

	entities, err := p.Extractor.Extract(file.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to extract entities: %w", err)
	}
	for _, entity := range entities {
		entity.ProjectID = file.ProjectID
	}

	mentions, err := TrackMentions(entities, file.Content, file.ID, file.Scenes)
	if err != nil {
		return nil, fmt.Errorf("failed to track mentions: %w", err)
	}

	result := &Result{
		Entities: entities,
		Mentions: mentions,
	}
	for _, segment := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk := &model.TextChunk{
			ID:                uuid.New(),
			FileID:            file.ID,
			ProjectID:         file.ProjectID,
			Content:           segment.Content,
			StartOffset:       segment.StartOffset,
			EndOffset:         segment.EndOffset,
			ChunkIndex:        segment.Index,
			WordCount:         segment.WordCount,
			EntitiesMentioned: entitiesInSpan(mentions, segment.StartOffset, segment.EndOffset),
			Metadata:          map[string]interface{}{},
		}
		if p.Embedder != nil {
			embedding, err := p.Embedder(segment.Content)
			if err != nil {
				result.EmbeddingFailures++
			} else {
				chunk.Embedding = embedding
			}
		}
		result.Chunks = append(result.Chunks, chunk)
	}
	return result, nil
}

// entitiesInSpan returns the distinct entities with a mention overlapping
// [start, end), in first mention order.
func entitiesInSpan(mentions []*model.Mention, start int, end int) []uuid.UUID {
	ids := []uuid.UUID{}
	seen := map[uuid.UUID]bool{}
	for _, mention := range mentions {
		if mention.StartOffset < end && mention.EndOffset > start && !seen[mention.EntityID] {
			seen[mention.EntityID] = true
			ids = append(ids, mention.EntityID)
		}
	}
	return ids
}
