package dedup

import (
	"math"
	"strings"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// MinPersistScore is the floor below which a comparison yields no match.
const MinPersistScore = 70

// Match is the outcome of comparing two author records.
type Match struct {
	Score      int
	Confidence domain.Confidence
	Reasons    domain.MatchReasons
}

// Compare scores two author records through the rule cascade. It returns nil
// when the pair does not reach the minimum score, or when either name is
// empty after normalization. Exact and flipped-name matches short-circuit;
// the remaining rules accumulate reasons and only ever raise the score.
func Compare(a, b *domain.Author) *Match {
	normA := Normalize(a.Name)
	normB := Normalize(b.Name)
	if normA == "" || normB == "" {
		return nil
	}

	if normA == normB {
		return &Match{
			Score:      100,
			Confidence: domain.ConfidenceExact,
			Reasons:    domain.MatchReasons{ExactMatch: true},
		}
	}

	if flippedEqual(a.Name, b.Name) {
		return &Match{
			Score:      95,
			Confidence: domain.ConfidenceHigh,
			Reasons:    domain.MatchReasons{NameFlipped: true},
		}
	}

	match := Match{Confidence: domain.ConfidenceLow}

	if similarity := levenshteinSimilarity(normA, normB); similarity >= 85 {
		match.Score = similarity
		match.Reasons.FuzzyMatch = similarity
		if similarity >= 90 {
			match.Confidence = match.Confidence.Max(domain.ConfidenceHigh)
		} else {
			match.Confidence = match.Confidence.Max(domain.ConfidenceMedium)
		}
	}

	if initialsMatch(a.Name, b.Name) {
		match.Score = max(match.Score, 85)
		match.Confidence = match.Confidence.Max(domain.ConfidenceHigh)
		match.Reasons.InitialsMatch = true
	}

	if missingMiddle(a.Name, b.Name) {
		match.Score = max(match.Score, 90)
		match.Confidence = match.Confidence.Max(domain.ConfidenceHigh)
		match.Reasons.MissingMiddle = true
	}

	if shared := sharedCatalogs(a, b); len(shared) > 0 {
		match.Score = max(match.Score, 95)
		match.Confidence = match.Confidence.Max(domain.ConfidenceHigh)
		match.Reasons.SharedExternalIDs = shared
	}

	if match.Score < MinPersistScore {
		return nil
	}

	return &match
}

// flippedEqual reports whether one name in "Last, First" form flips into the
// other. A name that flips to itself never qualifies.
func flippedEqual(nameA, nameB string) bool {
	flippedA := Flip(nameA)
	flippedB := Flip(nameB)
	if flippedA == nameA && flippedB == nameB {
		return false
	}
	return strings.EqualFold(flippedA, nameB) || strings.EqualFold(flippedB, nameA)
}

// levenshteinSimilarity is round((1 - distance/maxLen) * 100) over the two
// normalized strings.
func levenshteinSimilarity(a, b string) int {
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 100
	}
	distance := levenshtein(a, b)
	return int(math.Round((1 - float64(distance)/float64(maxLen)) * 100))
}

// levenshtein computes classic edit distance with unit costs, using a
// two-row dynamic-programming table.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// isInitial reports whether a raw token looks like an initial: a single
// character, or two characters ending in a period.
func isInitial(token string) bool {
	return len(token) == 1 || (len(token) == 2 && strings.HasSuffix(token, "."))
}

// initialsMatch compares the raw names token-wise. The pair qualifies when
// token counts differ by at most one, at least one side carries an
// initial-shaped token, and enough aligned positions agree either exactly or
// as initial-versus-first-letter.
func initialsMatch(nameA, nameB string) bool {
	tokensA := strings.Fields(nameA)
	tokensB := strings.Fields(nameB)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return false
	}
	if abs(len(tokensA)-len(tokensB)) > 1 {
		return false
	}

	hasInitial := false
	for _, t := range tokensA {
		if isInitial(t) {
			hasInitial = true
			break
		}
	}
	if !hasInitial {
		for _, t := range tokensB {
			if isInitial(t) {
				hasInitial = true
				break
			}
		}
	}
	if !hasInitial {
		return false
	}

	compared := min(len(tokensA), len(tokensB))
	required := min(2, compared)

	matches := 0
	for i := 0; i < compared; i++ {
		if tokensAgree(tokensA[i], tokensB[i]) {
			matches++
		}
	}

	return matches >= required
}

// tokensAgree reports whether two raw tokens match exactly (case-insensitive)
// or as an initial against the other token's first letter.
func tokensAgree(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	if isInitial(a) && strings.EqualFold(a[:1], b[:1]) {
		return true
	}
	if isInitial(b) && strings.EqualFold(b[:1], a[:1]) {
		return true
	}
	return false
}

// missingMiddle reports whether the parsed first and last tokens match while
// the middle-token counts differ, as in "John Smith" vs "John Q. Smith".
func missingMiddle(nameA, nameB string) bool {
	parsedA := Parse(nameA)
	parsedB := Parse(nameB)
	if parsedA.First == "" || parsedB.First == "" {
		return false
	}
	if !strings.EqualFold(parsedA.First, parsedB.First) || !strings.EqualFold(parsedA.Last, parsedB.Last) {
		return false
	}
	return len(parsedA.Middle) != len(parsedB.Middle)
}

// sharedCatalogs lists the catalogs for which both authors carry the same
// non-empty identifier.
func sharedCatalogs(a, b *domain.Author) []string {
	var shared []string
	for _, catalog := range []domain.Catalog{
		domain.CatalogGoodReads,
		domain.CatalogOpenLibrary,
		domain.CatalogHardcover,
	} {
		idA := a.ExternalID(catalog)
		idB := b.ExternalID(catalog)
		if idA != nil && idB != nil && *idA != "" && *idA == *idB {
			shared = append(shared, string(catalog))
		}
	}
	return shared
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
