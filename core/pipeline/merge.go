package pipeline

import (
	"sort"
	"strings"

	"github.com/siherrmann/narrator/model"
)

// mergeEntities folds name variants of the same type into one canonical
// entity each. Two entities merge when one name's tokens are contained in
// the other's, when their name/alias sets intersect, or when their token
// Jaccard similarity reaches jaccardThreshold. The merged entity keeps the
// longest name, unions the remaining names as aliases, sums mention counts,
// averages confidence and widens the mention offsets.
func mergeEntities(entities []*model.Entity, jaccardThreshold float64) []*model.Entity {
	if len(entities) <= 1 {
		return entities
	}

	sorted := make([]*model.Entity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})

	parent := make([]int, len(sorted))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[rj] = ri
		}
	}

	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i].Type != sorted[j].Type {
				continue
			}
			if sameEntity(sorted[i], sorted[j], jaccardThreshold) {
				union(i, j)
			}
		}
	}

	groups := map[int][]*model.Entity{}
	roots := []int{}
	for i, entity := range sorted {
		root := find(i)
		if _, ok := groups[root]; !ok {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], entity)
	}

	merged := make([]*model.Entity, 0, len(roots))
	for _, root := range roots {
		merged = append(merged, mergeGroup(groups[root]))
	}
	return merged
}

// sameEntity reports whether two same-type entities are variants of one
// name.
func sameEntity(a *model.Entity, b *model.Entity, jaccardThreshold float64) bool {
	tokensA := nameTokens(a.Name)
	tokensB := nameTokens(b.Name)
	if containsAll(tokensA, tokensB) || containsAll(tokensB, tokensA) {
		return true
	}
	if namesIntersect(a, b) {
		return true
	}
	return jaccard(tokensA, tokensB) >= jaccardThreshold
}

// mergeGroup folds one merge group into its canonical entity. The group
// member with the longest name wins and keeps its ID.
func mergeGroup(group []*model.Entity) *model.Entity {
	if len(group) == 1 {
		return group[0]
	}

	canonical := group[0]
	for _, entity := range group[1:] {
		if len(entity.Name) > len(canonical.Name) {
			canonical = entity
		}
	}

	aliases := []string{}
	seenAliases := map[string]bool{strings.ToLower(canonical.Name): true}
	mentionCount := 0
	confidenceSum := 0.0
	var first, last *int
	for _, entity := range group {
		mentionCount += entity.MentionCount
		confidenceSum += entity.ConfidenceScore
		for _, name := range entity.AllNames() {
			lowered := strings.ToLower(strings.TrimSpace(name))
			if lowered == "" || seenAliases[lowered] {
				continue
			}
			seenAliases[lowered] = true
			aliases = append(aliases, strings.TrimSpace(name))
		}
		if entity.FirstMentioned != nil && (first == nil || *entity.FirstMentioned < *first) {
			first = entity.FirstMentioned
		}
		if entity.LastMentioned != nil && (last == nil || *entity.LastMentioned > *last) {
			last = entity.LastMentioned
		}
	}
	sort.Strings(aliases)

	canonical.Aliases = aliases
	canonical.MentionCount = mentionCount
	canonical.ConfidenceScore = clamp01(confidenceSum / float64(len(group)))
	canonical.FirstMentioned = first
	canonical.LastMentioned = last
	return canonical
}

func nameTokens(name string) map[string]bool {
	tokens := map[string]bool{}
	for _, token := range strings.Fields(strings.ToLower(name)) {
		tokens[token] = true
	}
	return tokens
}

// containsAll reports whether every token of inner occurs in outer.
func containsAll(outer map[string]bool, inner map[string]bool) bool {
	if len(inner) == 0 || len(inner) > len(outer) {
		return false
	}
	for token := range inner {
		if !outer[token] {
			return false
		}
	}
	return true
}

func namesIntersect(a *model.Entity, b *model.Entity) bool {
	namesA := map[string]bool{}
	for _, name := range a.AllNames() {
		namesA[strings.ToLower(strings.TrimSpace(name))] = true
	}
	for _, name := range b.AllNames() {
		if namesA[strings.ToLower(strings.TrimSpace(name))] {
			return true
		}
	}
	return false
}

// jaccard returns the token set similarity of two names.
func jaccard(a map[string]bool, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
