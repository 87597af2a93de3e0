package dedup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ibdb/book-catalog-service/internal/domain"
	"github.com/ibdb/book-catalog-service/internal/repository"
)

// Detector runs duplicate-detection passes over the author population.
type Detector struct {
	authors  repository.AuthorRepository
	pageSize int
}

// NewDetector creates a detector that loads authors in pages of pageSize.
func NewDetector(authors repository.AuthorRepository, pageSize int) *Detector {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Detector{authors: authors, pageSize: pageSize}
}

// ExactGroup is a set of authors sharing one normalized name.
type ExactGroup struct {
	Normalized string
	Authors    []*domain.Author
}

// FindAllOptions tunes a full pairwise scan.
type FindAllOptions struct {
	// MinScore keeps only pairs at or above this score. Zero means the
	// scorer's own floor applies.
	MinScore int

	// Limit and Offset confine the comparison to one page of authors
	// ordered by name. Zero Limit scans the whole population.
	Limit  int
	Offset int

	// OnProgress, if set, is invoked after each outer-loop author with the
	// number processed so far and the total under comparison.
	OnProgress func(processed, total int)
}

// loadAll pages through every author ordered by name.
func (d *Detector) loadAll(ctx context.Context) ([]*domain.Author, error) {
	var all []*domain.Author
	offset := 0
	for {
		page, _, err := d.authors.List(ctx, repository.AuthorFilter{Limit: d.pageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("failed to load authors: %w", err)
		}
		all = append(all, page...)
		if len(page) < d.pageSize {
			return all, nil
		}
		offset += d.pageSize
	}
}

// FindExactDuplicates groups authors by normalized name and returns every
// group with more than one member.
func (d *Detector) FindExactDuplicates(ctx context.Context) ([]ExactGroup, int, error) {
	all, err := d.loadAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	byNormalized := make(map[string][]*domain.Author)
	for _, author := range all {
		normalized := Normalize(author.Name)
		if normalized == "" {
			continue
		}
		byNormalized[normalized] = append(byNormalized[normalized], author)
	}

	groups := make([]ExactGroup, 0)
	for normalized, members := range byNormalized {
		if len(members) > 1 {
			groups = append(groups, ExactGroup{Normalized: normalized, Authors: members})
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Normalized < groups[j].Normalized })

	return groups, len(all), nil
}

// FindFlippedNameDuplicates finds authors stored in "Last, First" form whose
// flipped name matches another author's raw name. Each match becomes one
// similarity edge at score 95.
func (d *Detector) FindFlippedNameDuplicates(ctx context.Context) ([]*domain.AuthorSimilarity, int, error) {
	all, err := d.loadAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	byLowerName := make(map[string][]*domain.Author, len(all))
	for _, author := range all {
		key := strings.ToLower(strings.TrimSpace(author.Name))
		byLowerName[key] = append(byLowerName[key], author)
	}

	seen := make(map[string]struct{})
	var edges []*domain.AuthorSimilarity
	for _, author := range all {
		flipped := Flip(author.Name)
		if flipped == author.Name {
			continue
		}
		for _, other := range byLowerName[strings.ToLower(flipped)] {
			if other.ID == author.ID {
				continue
			}
			key := domain.PairKey(author.ID, other.ID)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			edges = append(edges, &domain.AuthorSimilarity{
				Author1ID:   author.ID,
				Author1Name: author.Name,
				Author2ID:   other.ID,
				Author2Name: other.Name,
				Score:       95,
				Confidence:  domain.ConfidenceHigh,
				Reasons:     domain.MatchReasons{NameFlipped: true},
			})
		}
	}

	return edges, len(all), nil
}

// FindAllDuplicates compares every unordered pair of authors within the
// requested page through the scoring cascade. Comparison is confined to the
// page; full population coverage requires paging by the caller or blocking
// via FindDuplicatesForAuthor.
func (d *Detector) FindAllDuplicates(ctx context.Context, opts FindAllOptions) ([]*domain.AuthorSimilarity, int, error) {
	var authors []*domain.Author
	var err error
	if opts.Limit > 0 {
		authors, _, err = d.authors.List(ctx, repository.AuthorFilter{Limit: opts.Limit, Offset: opts.Offset})
	} else {
		authors, err = d.loadAll(ctx)
	}
	if err != nil {
		return nil, 0, err
	}

	minScore := opts.MinScore
	if minScore < MinPersistScore {
		minScore = MinPersistScore
	}

	seen := make(map[string]struct{})
	var matches []*domain.AuthorSimilarity
	for i, author := range authors {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		for j := i + 1; j < len(authors); j++ {
			other := authors[j]
			key := domain.PairKey(author.ID, other.ID)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			match := Compare(author, other)
			if match == nil || match.Score < minScore {
				continue
			}
			matches = append(matches, similarityFromMatch(author, other, match))
		}
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(authors))
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	return matches, len(authors), nil
}

// FindDuplicatesForAuthor scores one author against candidates sharing the
// first letter of its name, sorted descending by score.
func (d *Detector) FindDuplicatesForAuthor(ctx context.Context, id uuid.UUID) ([]*domain.AuthorSimilarity, error) {
	target, err := d.authors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(target.Name)
	if trimmed == "" {
		return []*domain.AuthorSimilarity{}, nil
	}
	// The blocking prefix is the first rune, not the first byte: a byte
	// slice through a multibyte letter is invalid UTF-8 and matches nothing.
	firstLetter, _ := utf8.DecodeRuneInString(trimmed)

	var matches []*domain.AuthorSimilarity
	offset := 0
	for {
		candidates, _, err := d.authors.List(ctx, repository.AuthorFilter{
			NamePrefix: string(firstLetter),
			Limit:      d.pageSize,
			Offset:     offset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load candidates: %w", err)
		}

		for _, candidate := range candidates {
			if candidate.ID == target.ID {
				continue
			}
			if match := Compare(target, candidate); match != nil {
				matches = append(matches, similarityFromMatch(target, candidate, match))
			}
		}

		if len(candidates) < d.pageSize {
			break
		}
		offset += d.pageSize
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	return matches, nil
}

func similarityFromMatch(a, b *domain.Author, match *Match) *domain.AuthorSimilarity {
	return &domain.AuthorSimilarity{
		Author1ID:   a.ID,
		Author1Name: a.Name,
		Author2ID:   b.ID,
		Author2Name: b.Name,
		Score:       match.Score,
		Confidence:  match.Confidence,
		Reasons:     match.Reasons,
	}
}
