package hardcover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibdb/book-catalog-service/internal/config"
	"github.com/ibdb/book-catalog-service/internal/domain"
	"github.com/ibdb/book-catalog-service/internal/observability"
)

const apiSource = "hardcover"

// Contribution is one author credit on a Hardcover book.
type Contribution struct {
	AuthorID   string
	AuthorName string
	AuthorSlug string
}

// LookupResult carries the external identifiers resolved for a book. A nil
// result (with nil error) means no match was found.
type LookupResult struct {
	BookID        string
	BookSlug      string
	EditionID     string
	Contributions []Contribution
}

// Client queries the Hardcover GraphQL API. Requests are rate limited and
// retried by the underlying HTTPClient.
type Client struct {
	http    *HTTPClient
	baseURL string
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewClient builds a Hardcover client from configuration. metrics may be nil.
func NewClient(cfg config.HardcoverConfig, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		http: NewHTTPClient(HTTPClientConfig{
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			Token:      cfg.Token,
		}),
		baseURL: cfg.BaseURL,
		logger:  logger,
		metrics: metrics,
	}
}

const editionByISBNQuery = `
query EditionByISBN($isbn: String!) {
  editions(where: {isbn_13: {_eq: $isbn}}, limit: 1) {
    id
    book {
      id
      slug
      contributions {
        author {
          id
          name
          slug
        }
      }
    }
  }
}`

const booksByTitleQuery = `
query BooksByTitle($title: String!) {
  books(where: {title: {_eq: $title}}, limit: 5) {
    id
    slug
    contributions {
      author {
        id
        name
        slug
      }
    }
  }
}`

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type authorPayload struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
	Slug string      `json:"slug"`
}

type contributionPayload struct {
	Author authorPayload `json:"author"`
}

type bookPayload struct {
	ID            json.Number           `json:"id"`
	Slug          string                `json:"slug"`
	Contributions []contributionPayload `json:"contributions"`
}

type editionPayload struct {
	ID   json.Number  `json:"id"`
	Book *bookPayload `json:"book"`
}

type lookupResponse struct {
	Data struct {
		Editions []editionPayload `json:"editions"`
		Books    []bookPayload    `json:"books"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// Lookup resolves external identifiers for a book, preferring an exact ISBN
// match and falling back to a title search disambiguated by author name.
func (c *Client) Lookup(ctx context.Context, title, authorName, isbn string) (*LookupResult, error) {
	if isbn != "" {
		result, err := c.LookupByISBN(ctx, isbn)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}

	if title == "" {
		return nil, nil
	}

	return c.LookupByTitle(ctx, title, authorName)
}

// LookupByISBN resolves a book through its edition's ISBN-13.
func (c *Client) LookupByISBN(ctx context.Context, isbn string) (*LookupResult, error) {
	resp, err := c.execute(ctx, "edition_by_isbn", editionByISBNQuery, map[string]interface{}{"isbn": isbn})
	if err != nil {
		return nil, err
	}

	if len(resp.Data.Editions) == 0 || resp.Data.Editions[0].Book == nil {
		return nil, nil
	}

	edition := resp.Data.Editions[0]
	result := resultFromBook(*edition.Book)
	result.EditionID = edition.ID.String()
	return result, nil
}

// LookupByTitle resolves a book by exact title. When several books share the
// title, the one crediting an author whose name matches authorName wins;
// otherwise the first result is taken.
func (c *Client) LookupByTitle(ctx context.Context, title, authorName string) (*LookupResult, error) {
	resp, err := c.execute(ctx, "books_by_title", booksByTitleQuery, map[string]interface{}{"title": title})
	if err != nil {
		return nil, err
	}

	if len(resp.Data.Books) == 0 {
		return nil, nil
	}

	book := resp.Data.Books[0]
	if authorName != "" {
		for _, candidate := range resp.Data.Books {
			if creditsAuthor(candidate, authorName) {
				book = candidate
				break
			}
		}
	}

	return resultFromBook(book), nil
}

// execute posts one GraphQL request and decodes the response envelope.
func (c *Client) execute(ctx context.Context, operation, query string, variables map[string]interface{}) (*lookupResponse, error) {
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordHardcoverRequestFailed(operation, "transport")
		}
		return nil, domain.NewExternalAPIError(apiSource, 0, "request failed", err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordHardcoverRequest(operation, time.Since(started).Seconds())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewExternalAPIError(apiSource, resp.StatusCode, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		if c.metrics != nil {
			c.metrics.RecordHardcoverRequestFailed(operation, fmt.Sprintf("status_%d", resp.StatusCode))
		}
		return nil, domain.NewExternalAPIError(apiSource, resp.StatusCode, strings.TrimSpace(string(body)), nil)
	}

	var decoded lookupResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		if c.metrics != nil {
			c.metrics.RecordHardcoverRequestFailed(operation, "decode")
		}
		return nil, domain.NewExternalAPIError(apiSource, resp.StatusCode, "malformed response payload", err)
	}

	if len(decoded.Errors) > 0 {
		if c.metrics != nil {
			c.metrics.RecordHardcoverRequestFailed(operation, "graphql")
		}
		return nil, domain.NewExternalAPIError(apiSource, resp.StatusCode, decoded.Errors[0].Message, nil)
	}

	return &decoded, nil
}

func resultFromBook(book bookPayload) *LookupResult {
	result := &LookupResult{
		BookID:   book.ID.String(),
		BookSlug: book.Slug,
	}
	for _, contribution := range book.Contributions {
		result.Contributions = append(result.Contributions, Contribution{
			AuthorID:   contribution.Author.ID.String(),
			AuthorName: contribution.Author.Name,
			AuthorSlug: contribution.Author.Slug,
		})
	}
	return result
}

func creditsAuthor(book bookPayload, authorName string) bool {
	for _, contribution := range book.Contributions {
		if strings.EqualFold(strings.TrimSpace(contribution.Author.Name), strings.TrimSpace(authorName)) {
			return true
		}
	}
	return false
}
