package search

import (
	"math"
	"strings"
	"unicode"
)

// Standard BM25 parameters
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// tokenize splits text into lowercase tokens with surrounding punctuation
// stripped.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
		})
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// lexicalScores scores every document against the query with BM25 and
// normalizes by the best-scoring document, so scores land in [0, 1].
func lexicalScores(docs []string, query string) []float64 {
	scores := make([]float64, len(docs))
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || len(docs) == 0 {
		return scores
	}

	n := float64(len(docs))
	docTokens := make([][]string, len(docs))
	var totalLength float64
	for i, doc := range docs {
		docTokens[i] = tokenize(doc)
		totalLength += float64(len(docTokens[i]))
	}
	averageLength := totalLength / n
	if averageLength == 0 {
		return scores
	}

	idf := make(map[string]float64, len(queryTerms))
	for _, term := range queryTerms {
		if _, ok := idf[term]; ok {
			continue
		}
		documentsWithTerm := 0
		for _, tokens := range docTokens {
			for _, token := range tokens {
				if token == term {
					documentsWithTerm++
					break
				}
			}
		}
		idf[term] = math.Log((n-float64(documentsWithTerm)+0.5)/(float64(documentsWithTerm)+0.5) + 1.0)
	}

	maxScore := 0.0
	for i := range docs {
		frequencies := make(map[string]int, len(docTokens[i]))
		for _, token := range docTokens[i] {
			frequencies[token]++
		}
		length := float64(len(docTokens[i]))

		score := 0.0
		for _, term := range queryTerms {
			frequency := float64(frequencies[term])
			score += idf[term] * (frequency * (bm25K1 + 1.0)) / (frequency + bm25K1*(1.0-bm25B+bm25B*length/averageLength))
		}
		scores[i] = score
		if score > maxScore {
			maxScore = score
		}
	}

	if maxScore > 0 {
		for i := range scores {
			scores[i] /= maxScore
		}
	}
	return scores
}
