// Package lexicon provides the curated word lists used by entity extraction,
// theme detection and relationship classification. The lists are versioned
// JSON files compiled into the binary.
package lexicon

import (
	_ "embed"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/siherrmann/narrator/helper"
)

//go:embed data/words.json
var wordsJSON []byte

//go:embed data/themes.json
var themesJSON []byte

//go:embed data/locations.json
var locationsJSON []byte

// wordLists mirrors data/words.json
type wordLists struct {
	Version             int      `json:"version"`
	StopWords           []string `json:"stop_words"`
	ActionVerbs         []string `json:"action_verbs"`
	BodyParts           []string `json:"body_parts"`
	Pronouns            []string `json:"pronouns"`
	DialogueTags        []string `json:"dialogue_tags"`
	Honorifics          []string `json:"honorifics"`
	EmotionalWords      []string `json:"emotional_words"`
	SpatialPrepositions []string `json:"spatial_prepositions"`
	MovementVerbs       []string `json:"movement_verbs"`
	InteractionVerbs    []string `json:"interaction_verbs"`
}

// themeLists mirrors data/themes.json
type themeLists struct {
	Version    int                 `json:"version"`
	Categories map[string][]string `json:"categories"`
}

// locationLists mirrors data/locations.json
type locationLists struct {
	Version      int      `json:"version"`
	WellKnown    []string `json:"well_known"`
	VenueNouns   []string `json:"venue_nouns"`
	NamePatterns []string `json:"name_patterns"`
}

// Lexicon holds the parsed word lists with lowercase lookup sets
type Lexicon struct {
	version int

	stopWords           map[string]struct{}
	actionVerbs         map[string]struct{}
	bodyParts           map[string]struct{}
	pronouns            map[string]struct{}
	dialogueTags        map[string]struct{}
	honorifics          map[string]struct{}
	emotionalWords      map[string]struct{}
	spatialPrepositions map[string]struct{}
	movementVerbs       map[string]struct{}
	interactionVerbs    map[string]struct{}

	themes map[string][]string

	wellKnownLocations map[string]struct{}
	venueNouns         map[string]struct{}
	namePatterns       []*regexp.Regexp
}

// New parses the embedded lexicon data into lookup structures
func New() (*Lexicon, error) {
	var words wordLists
	err := json.Unmarshal(wordsJSON, &words)
	if err != nil {
		return nil, helper.NewError("parsing word lists", err)
	}

	var themes themeLists
	err = json.Unmarshal(themesJSON, &themes)
	if err != nil {
		return nil, helper.NewError("parsing theme lists", err)
	}

	var locations locationLists
	err = json.Unmarshal(locationsJSON, &locations)
	if err != nil {
		return nil, helper.NewError("parsing location lists", err)
	}

	lexicon := &Lexicon{
		version:             words.Version,
		stopWords:           toSet(words.StopWords),
		actionVerbs:         toSet(words.ActionVerbs),
		bodyParts:           toSet(words.BodyParts),
		pronouns:            toSet(words.Pronouns),
		dialogueTags:        toSet(words.DialogueTags),
		honorifics:          toSet(words.Honorifics),
		emotionalWords:      toSet(words.EmotionalWords),
		spatialPrepositions: toSet(words.SpatialPrepositions),
		movementVerbs:       toSet(words.MovementVerbs),
		interactionVerbs:    toSet(words.InteractionVerbs),
		themes:              make(map[string][]string, len(themes.Categories)),
		wellKnownLocations:  toSet(locations.WellKnown),
		venueNouns:          toSet(locations.VenueNouns),
	}

	for category, keywords := range themes.Categories {
		lowered := make([]string, 0, len(keywords))
		for _, keyword := range keywords {
			lowered = append(lowered, strings.ToLower(strings.TrimSpace(keyword)))
		}
		lexicon.themes[strings.ToLower(category)] = lowered
	}

	for _, pattern := range locations.NamePatterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, helper.NewError("compiling location pattern", err)
		}
		lexicon.namePatterns = append(lexicon.namePatterns, compiled)
	}

	return lexicon, nil
}

// Version returns the version of the embedded lexicon data
func (l *Lexicon) Version() int {
	return l.version
}

// IsStopWord reports whether the word is in the stop list
func (l *Lexicon) IsStopWord(word string) bool {
	_, ok := l.stopWords[normalize(word)]
	return ok
}

// IsActionVerb reports whether the word is a common narrative action verb
func (l *Lexicon) IsActionVerb(word string) bool {
	_, ok := l.actionVerbs[normalize(word)]
	return ok
}

// IsBodyPart reports whether the word is a body part noun
func (l *Lexicon) IsBodyPart(word string) bool {
	_, ok := l.bodyParts[normalize(word)]
	return ok
}

// IsPronoun reports whether the word is a pronoun
func (l *Lexicon) IsPronoun(word string) bool {
	_, ok := l.pronouns[normalize(word)]
	return ok
}

// IsDialogueTag reports whether the word is a generic dialogue tag verb
func (l *Lexicon) IsDialogueTag(word string) bool {
	_, ok := l.dialogueTags[normalize(word)]
	return ok
}

// IsHonorific reports whether the word is a title or honorific.
// Trailing periods are ignored so "Mr." matches "mr".
func (l *Lexicon) IsHonorific(word string) bool {
	_, ok := l.honorifics[strings.TrimSuffix(normalize(word), ".")]
	return ok
}

// IsEmotionalWord reports whether the word carries emotional context
func (l *Lexicon) IsEmotionalWord(word string) bool {
	_, ok := l.emotionalWords[normalize(word)]
	return ok
}

// IsSpatialPreposition reports whether the word is a spatial preposition
func (l *Lexicon) IsSpatialPreposition(word string) bool {
	_, ok := l.spatialPrepositions[normalize(word)]
	return ok
}

// IsMovementVerb reports whether the word is a movement verb
func (l *Lexicon) IsMovementVerb(word string) bool {
	_, ok := l.movementVerbs[normalize(word)]
	return ok
}

// IsInteractionVerb reports whether the word describes an interaction
// between characters, dialogue verbs included.
func (l *Lexicon) IsInteractionVerb(word string) bool {
	normalized := normalize(word)
	if _, ok := l.interactionVerbs[normalized]; ok {
		return true
	}
	_, ok := l.dialogueTags[normalized]
	return ok
}

// IsWellKnownLocation reports whether the name matches the location
// allowlist: known place names, venue nouns within the name, or one of
// the name patterns.
func (l *Lexicon) IsWellKnownLocation(name string) bool {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return false
	}

	if _, ok := l.wellKnownLocations[strings.ToLower(trimmed)]; ok {
		return true
	}

	for _, token := range strings.Fields(strings.ToLower(trimmed)) {
		if _, ok := l.venueNouns[token]; ok {
			return true
		}
	}

	for _, pattern := range l.namePatterns {
		if pattern.MatchString(trimmed) {
			return true
		}
	}

	return false
}

// ThemeCategories returns all theme category names in sorted order
func (l *Lexicon) ThemeCategories() []string {
	categories := make([]string, 0, len(l.themes))
	for category := range l.themes {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

// ThemeKeywords returns the keywords of a theme category, nil if unknown
func (l *Lexicon) ThemeKeywords(category string) []string {
	return l.themes[strings.ToLower(category)]
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[normalize(word)] = struct{}{}
	}
	return set
}

func normalize(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
