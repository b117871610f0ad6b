package pipeline

import (
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/narrator/helper"
)

// DefaultTagger creates a TagFunc backed by a NER model.
// Uses distilbert-NER, which labels PER, LOC and ORG spans.
func DefaultTagger() (TagFunc, error) {
	// Prepare model (download if needed)
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	// Initialize hugot session with Go backend
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	// Create token classification pipeline for NER
	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}), // Ignore non-entity tokens
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return func(text string) ([]TagSpan, error) {
		result, err := nerPipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to run NER: %w", err)
		}

		if len(result.Entities) == 0 {
			return nil, nil
		}

		var spans []TagSpan
		for _, entity := range result.Entities[0] {
			word := strings.TrimSpace(entity.Word)
			if word == "" {
				continue
			}
			spans = append(spans, TagSpan{
				Label: entity.Entity,
				Text:  word,
				Start: int(entity.Start),
				End:   int(entity.End),
				Score: float64(entity.Score),
			})
		}

		return spans, nil
	}, nil
}
