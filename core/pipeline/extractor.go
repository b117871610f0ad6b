package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator/lexicon"
	"github.com/siherrmann/narrator/model"
)

const (
	nerBaseConfidence      = 0.7
	patternBaseConfidence  = 0.5
	contextConfidenceBoost = 0.1
)

var (
	// titledNameRegex matches an honorific candidate followed by one or two
	// capitalized name words ("Lord Kael", "Lady Sera Brightblade").
	titledNameRegex = regexp.MustCompile(`\b([A-Z][a-z]+\.?) ([A-Z][a-z]+(?: [A-Z][a-z]+)?)`)
	// possessiveRegex captures the bare name of a possessive ("Kael's").
	possessiveRegex = regexp.MustCompile(`\b([A-Z][a-z]+)(?:'s|’s)\b`)
	// prepositionPhraseRegex matches a lowercase word followed by a
	// capitalized phrase; the word is checked against the spatial
	// preposition list ("in the Whispering Woods", "near Eldoria").
	prepositionPhraseRegex = regexp.MustCompile(`\b([a-z]+) (?:the )?([A-Z][a-z]+(?: (?:of the |of |the )?[A-Z][a-z]+)*)`)
	// capitalizedPhraseRegex matches any capitalized phrase, checked against
	// the well-known location allowlist.
	capitalizedPhraseRegex = regexp.MustCompile(`\b[A-Z][a-z]+(?: (?:of the |of |the )?[A-Z][a-z]+)*`)
)

// Extractor finds characters, locations and themes in manuscript text with
// an optional NER tagger, pattern heuristics and the lexicon word lists.
type Extractor struct {
	tagger TagFunc
	lex    *lexicon.Lexicon
	config model.ExtractorConfig
}

// NewExtractor creates an Extractor. The tagger may be nil, in which case
// only the pattern heuristics and the lexicon drive extraction.
func NewExtractor(tagger TagFunc, lex *lexicon.Lexicon, config model.ExtractorConfig) (*Extractor, error) {
	if lex == nil {
		return nil, fmt.Errorf("lexicon is nil")
	}
	return &Extractor{
		tagger: tagger,
		lex:    lex,
		config: config,
	}, nil
}

// Extract returns the canonical entities of text: characters and locations
// from the tagger and pattern passes, themes from the keyword lexicon. Name
// variants of the same entity are merged, candidates below the per-type
// mention minimums or the confidence threshold are dropped. The result is
// sorted by type and name, so extraction is deterministic for a given text.
func (e *Extractor) Extract(text string) ([]*model.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return []*model.Entity{}, nil
	}

	candidates := newCandidateSet()
	e.collectTitledNames(text, candidates)
	if e.tagger != nil {
		spans, err := e.tagger(text)
		if err != nil {
			return nil, fmt.Errorf("failed to tag text: %w", err)
		}
		e.collectTaggedSpans(text, spans, candidates)
	}
	e.collectPossessives(text, candidates)
	e.collectLocations(text, candidates)

	entities := e.finalizeCandidates(candidates)
	entities = append(entities, e.extractThemes(text)...)

	merged := e.applyThresholds(mergeEntities(entities, e.config.NameJaccardThreshold))
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Type != merged[j].Type {
			return merged[i].Type < merged[j].Type
		}
		return merged[i].Name < merged[j].Name
	})
	return merged, nil
}

// span is a half-open byte range in the source text.
type span struct {
	start int
	end   int
}

// candidate accumulates the occurrences of one (name, type) pair.
type candidate struct {
	name          string
	entityType    model.EntityType
	count         int
	confidenceSum float64
	first         int
	last          int
}

// candidateSet collects candidate occurrences and claims their spans, so a
// text region feeds at most one candidate per entity type no matter how many
// passes match it.
type candidateSet struct {
	byKey   map[string]*candidate
	claimed map[model.EntityType][]span
}

func newCandidateSet() *candidateSet {
	return &candidateSet{
		byKey:   map[string]*candidate{},
		claimed: map[model.EntityType][]span{},
	}
}

// add records one occurrence of name at [start, end) unless the span
// overlaps one already claimed for the same entity type.
func (c *candidateSet) add(name string, entityType model.EntityType, start int, end int, confidence float64) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	for _, claimed := range c.claimed[entityType] {
		if start < claimed.end && claimed.start < end {
			return
		}
	}
	c.claimed[entityType] = append(c.claimed[entityType], span{start: start, end: end})

	key := strings.ToLower(name) + "|" + string(entityType)
	cand, ok := c.byKey[key]
	if !ok {
		cand = &candidate{
			name:       name,
			entityType: entityType,
			first:      start,
			last:       start,
		}
		c.byKey[key] = cand
	}
	cand.count++
	cand.confidenceSum += confidence
	if start < cand.first {
		cand.first = start
	}
	if start > cand.last {
		cand.last = start
	}
}

// collectTitledNames adds honorific-led names as character candidates. The
// titled pass runs first so it claims the full span before the other passes
// see the bare name inside it.
func (e *Extractor) collectTitledNames(text string, candidates *candidateSet) {
	for _, match := range titledNameRegex.FindAllStringSubmatchIndex(text, -1) {
		if !e.lex.IsHonorific(text[match[2]:match[3]]) {
			continue
		}
		candidates.add(text[match[0]:match[1]], model.EntityTypeCharacter, match[0], match[1], patternBaseConfidence)
	}
}

// collectTaggedSpans adds NER spans as candidates. PERSON labels become
// characters, GPE/LOC/FAC labels become locations, everything else is
// ignored.
func (e *Extractor) collectTaggedSpans(text string, spans []TagSpan, candidates *candidateSet) {
	for _, tagged := range spans {
		entityType, ok := entityTypeForLabel(tagged.Label)
		if !ok {
			continue
		}
		candidates.add(tagged.Text, entityType, tagged.Start, tagged.End, e.nerConfidence(text, tagged.Start, tagged.End))
	}
}

// collectPossessives adds the bare names of possessive forms as character
// candidates.
func (e *Extractor) collectPossessives(text string, candidates *candidateSet) {
	for _, match := range possessiveRegex.FindAllStringSubmatchIndex(text, -1) {
		candidates.add(text[match[2]:match[3]], model.EntityTypeCharacter, match[2], match[3], patternBaseConfidence)
	}
}

// collectLocations adds location candidates from spatial prepositional
// phrases and from capitalized phrases on the well-known allowlist. When a
// multi-word phrase is not well-known as a whole, its single words are
// checked individually, so a sentence-initial "In Eldoria" still yields
// "Eldoria".
func (e *Extractor) collectLocations(text string, candidates *candidateSet) {
	for _, match := range prepositionPhraseRegex.FindAllStringSubmatchIndex(text, -1) {
		if !e.lex.IsSpatialPreposition(text[match[2]:match[3]]) {
			continue
		}
		candidates.add(text[match[4]:match[5]], model.EntityTypeLocation, match[4], match[5], patternBaseConfidence)
	}

	for _, match := range capitalizedPhraseRegex.FindAllStringIndex(text, -1) {
		phrase := text[match[0]:match[1]]
		if e.lex.IsWellKnownLocation(phrase) {
			candidates.add(phrase, model.EntityTypeLocation, match[0], match[1], patternBaseConfidence)
			continue
		}
		if !strings.Contains(phrase, " ") {
			continue
		}
		offset := 0
		for _, word := range strings.Split(phrase, " ") {
			if len(word) > 0 && word[0] >= 'A' && word[0] <= 'Z' && e.lex.IsWellKnownLocation(word) {
				candidates.add(word, model.EntityTypeLocation, match[0]+offset, match[0]+offset+len(word), patternBaseConfidence)
			}
			offset += len(word) + 1
		}
	}
}

// nerConfidence returns the confidence of one NER occurrence: the base value
// plus a boost when the span sits near dialogue quotes or directly after an
// honorific.
func (e *Extractor) nerConfidence(text string, start int, end int) float64 {
	from := start - 30
	if from < 0 {
		from = 0
	}
	to := end + 30
	if to > len(text) {
		to = len(text)
	}
	if strings.ContainsAny(text[from:to], "\"“”") {
		return nerBaseConfidence + contextConfidenceBoost
	}
	if e.lex.IsHonorific(precedingWord(text, start)) {
		return nerBaseConfidence + contextConfidenceBoost
	}
	return nerBaseConfidence
}

// finalizeCandidates turns candidates with valid names into raw entities.
// Well-known locations bypass the name filters. Mention minimums and the
// confidence threshold are applied later, after variant merging, so a name
// that only reaches its minimum through variants still survives.
func (e *Extractor) finalizeCandidates(candidates *candidateSet) []*model.Entity {
	keys := make([]string, 0, len(candidates.byKey))
	for key := range candidates.byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entities := []*model.Entity{}
	for _, key := range keys {
		cand := candidates.byKey[key]
		if !e.isWellKnown(cand.name, cand.entityType) && !e.validName(cand.name) {
			continue
		}

		first := cand.first
		last := cand.last
		entities = append(entities, &model.Entity{
			ID:              uuid.New(),
			Type:            cand.entityType,
			Name:            cand.name,
			Aliases:         []string{},
			ConfidenceScore: clamp01(cand.confidenceSum / float64(cand.count)),
			MentionCount:    cand.count,
			FirstMentioned:  &first,
			LastMentioned:   &last,
		})
	}
	return entities
}

// applyThresholds drops merged characters and locations below their mention
// minimum or the confidence threshold. Themes pass through, their presence
// threshold was already applied during scoring.
func (e *Extractor) applyThresholds(entities []*model.Entity) []*model.Entity {
	kept := []*model.Entity{}
	for _, entity := range entities {
		if entity.Type == model.EntityTypeTheme {
			kept = append(kept, entity)
			continue
		}
		if entity.MentionCount < e.minMentions(entity) {
			continue
		}
		if entity.ConfidenceScore < e.config.ConfidenceThreshold {
			continue
		}
		kept = append(kept, entity)
	}
	return kept
}

func (e *Extractor) minMentions(entity *model.Entity) int {
	if entity.Type != model.EntityTypeLocation {
		return e.config.CharacterMinMentions
	}
	if e.isWellKnown(entity.Name, entity.Type) {
		return e.config.WellKnownMinMentions
	}
	return e.config.LocationMinMentions
}

func (e *Extractor) isWellKnown(name string, entityType model.EntityType) bool {
	return entityType == model.EntityTypeLocation && e.lex.IsWellKnownLocation(name)
}

// entityTypeForLabel maps a tagger label to an entity type. B-/I- prefixes
// from unaggregated taggers are tolerated.
func entityTypeForLabel(label string) (model.EntityType, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(label))
	if i := strings.IndexByte(normalized, '-'); i >= 0 {
		normalized = normalized[i+1:]
	}
	switch normalized {
	case "PER", "PERSON":
		return model.EntityTypeCharacter, true
	case "LOC", "GPE", "FAC", "LOCATION":
		return model.EntityTypeLocation, true
	}
	return "", false
}
