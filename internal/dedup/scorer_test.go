package dedup

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

func author(name string) *domain.Author {
	return &domain.Author{ID: uuid.New(), Name: name}
}

func TestCompare_ExactMatch(t *testing.T) {
	match := Compare(author("Stephen King"), author("stephen king"))
	require.NotNil(t, match)
	assert.Equal(t, 100, match.Score)
	assert.Equal(t, domain.ConfidenceExact, match.Confidence)
	assert.True(t, match.Reasons.ExactMatch)
}

func TestCompare_FlippedName(t *testing.T) {
	match := Compare(author("King, Stephen"), author("Stephen King"))
	require.NotNil(t, match)
	assert.Equal(t, 95, match.Score)
	assert.Equal(t, domain.ConfidenceHigh, match.Confidence)
	assert.True(t, match.Reasons.NameFlipped)
	assert.False(t, match.Reasons.ExactMatch)
}

func TestCompare_FlippedName_EitherDirection(t *testing.T) {
	forward := Compare(author("King, Stephen"), author("stephen king"))
	backward := Compare(author("stephen king"), author("King, Stephen"))
	require.NotNil(t, forward)
	require.NotNil(t, backward)
	assert.Equal(t, forward.Score, backward.Score)
	assert.True(t, backward.Reasons.NameFlipped)
}

func TestCompare_FuzzyMatch(t *testing.T) {
	match := Compare(author("Stephan King"), author("Stephen King"))
	require.NotNil(t, match)
	assert.Equal(t, 92, match.Score)
	assert.Equal(t, domain.ConfidenceHigh, match.Confidence)
	assert.Equal(t, 92, match.Reasons.FuzzyMatch)
}

func TestCompare_InitialsMatch(t *testing.T) {
	match := Compare(author("J. R. R. Tolkien"), author("John Ronald Reuel Tolkien"))
	require.NotNil(t, match)
	assert.Equal(t, 85, match.Score)
	assert.Equal(t, domain.ConfidenceHigh, match.Confidence)
	assert.True(t, match.Reasons.InitialsMatch)
}

func TestCompare_MissingMiddle(t *testing.T) {
	match := Compare(author("John Smith"), author("John Q. Smith"))
	require.NotNil(t, match)
	assert.Equal(t, 90, match.Score)
	assert.Equal(t, domain.ConfidenceHigh, match.Confidence)
	assert.True(t, match.Reasons.MissingMiddle)
	assert.False(t, match.Reasons.InitialsMatch)
}

func TestCompare_SharedExternalIDs(t *testing.T) {
	goodReadsID := "1077326"
	a := author("J.K. Rowling")
	a.GoodReadsID = &goodReadsID
	b := author("Joanne Kathleen Rowling")
	b.GoodReadsID = &goodReadsID

	match := Compare(a, b)
	require.NotNil(t, match)
	assert.GreaterOrEqual(t, match.Score, 95)
	assert.Equal(t, domain.ConfidenceHigh, match.Confidence)
	assert.Equal(t, []string{"goodreads"}, match.Reasons.SharedExternalIDs)
}

func TestCompare_SharedExternalIDs_EmptyValuesIgnored(t *testing.T) {
	empty := ""
	a := author("Alice Walker")
	a.HardcoverID = &empty
	b := author("Bob Woodward")
	b.HardcoverID = &empty

	assert.Nil(t, Compare(a, b))
}

func TestCompare_NoMatch(t *testing.T) {
	assert.Nil(t, Compare(author("Stephen Hawking"), author("George Orwell")))
}

func TestCompare_EmptyNames(t *testing.T) {
	assert.Nil(t, Compare(author(""), author("Stephen King")))
	assert.Nil(t, Compare(author("..."), author("...")))
}

func TestCompare_ReasonsAccumulate(t *testing.T) {
	hardcoverID := "42"
	a := author("John Smith")
	a.HardcoverID = &hardcoverID
	b := author("John Q. Smith")
	b.HardcoverID = &hardcoverID

	match := Compare(a, b)
	require.NotNil(t, match)
	assert.Equal(t, 95, match.Score)
	assert.True(t, match.Reasons.MissingMiddle)
	assert.Equal(t, []string{"hardcover"}, match.Reasons.SharedExternalIDs)
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"stephen king", "stephen king", 0},
		{"flaw", "lawn", 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, levenshtein(tt.a, tt.b), "levenshtein(%q, %q)", tt.a, tt.b)
	}
}

func TestLevenshteinSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"stephen king", "stephan king"},
		{"kitten", "sitting"},
		{"a", "abcdef"},
		{"", "word"},
	}

	for _, pair := range pairs {
		assert.Equal(t,
			levenshteinSimilarity(pair[0], pair[1]),
			levenshteinSimilarity(pair[1], pair[0]),
			"similarity(%q, %q)", pair[0], pair[1])
	}
}

func TestCompare_Symmetric(t *testing.T) {
	a := author("Stephan King")
	b := author("Stephen King")

	forward := Compare(a, b)
	backward := Compare(b, a)
	require.NotNil(t, forward)
	require.NotNil(t, backward)
	assert.Equal(t, forward.Score, backward.Score)
	assert.Equal(t, forward.Confidence, backward.Confidence)
}
