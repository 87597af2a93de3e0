package hardcover

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibdb/book-catalog-service/internal/config"
	"github.com/ibdb/book-catalog-service/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.HardcoverConfig{
		Token:      "test-token",
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		RateLimit:  1000,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, zerolog.Nop(), nil)
}

func decodeRequest(t *testing.T, r *http.Request) graphqlRequest {
	t.Helper()
	var req graphqlRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func TestClient_LookupByISBN(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		req := decodeRequest(t, r)
		assert.Contains(t, req.Query, "EditionByISBN")
		assert.Equal(t, "9780261103573", req.Variables["isbn"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": {
				"editions": [{
					"id": 30408853,
					"book": {
						"id": 439120,
						"slug": "the-hobbit",
						"contributions": [
							{"author": {"id": 89271, "name": "J.R.R. Tolkien", "slug": "j-r-r-tolkien"}}
						]
					}
				}]
			}
		}`))
	})

	result, err := client.LookupByISBN(context.Background(), "9780261103573")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "439120", result.BookID)
	assert.Equal(t, "the-hobbit", result.BookSlug)
	assert.Equal(t, "30408853", result.EditionID)
	require.Len(t, result.Contributions, 1)
	assert.Equal(t, "89271", result.Contributions[0].AuthorID)
	assert.Equal(t, "J.R.R. Tolkien", result.Contributions[0].AuthorName)
}

func TestClient_LookupByISBN_NoMatch(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"editions": []}}`))
	})

	result, err := client.LookupByISBN(context.Background(), "9780000000000")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestClient_LookupByTitle_AuthorDisambiguates(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Contains(t, req.Query, "BooksByTitle")

		_, _ = w.Write([]byte(`{
			"data": {
				"books": [
					{"id": 1, "slug": "it-stephen-graham", "contributions": [{"author": {"id": 10, "name": "Stephen Graham", "slug": "stephen-graham"}}]},
					{"id": 2, "slug": "it-stephen-king", "contributions": [{"author": {"id": 20, "name": "Stephen King", "slug": "stephen-king"}}]}
				]
			}
		}`))
	})

	result, err := client.LookupByTitle(context.Background(), "It", "stephen king")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "2", result.BookID)
	assert.Equal(t, "it-stephen-king", result.BookSlug)
}

func TestClient_LookupByTitle_FallsBackToFirstResult(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": {
				"books": [
					{"id": 1, "slug": "dune", "contributions": [{"author": {"id": 10, "name": "Frank Herbert", "slug": "frank-herbert"}}]}
				]
			}
		}`))
	})

	result, err := client.LookupByTitle(context.Background(), "Dune", "Unknown Author")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "1", result.BookID)
}

func TestClient_Lookup_PrefersISBN(t *testing.T) {
	var queries []string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		queries = append(queries, req.Query)

		_, _ = w.Write([]byte(`{
			"data": {
				"editions": [{
					"id": 5,
					"book": {"id": 9, "slug": "carrie", "contributions": []}
				}]
			}
		}`))
	})

	result, err := client.Lookup(context.Background(), "Carrie", "Stephen King", "9780307743664")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "9", result.BookID)
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "EditionByISBN")
}

func TestClient_Lookup_FallsBackToTitle(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if _, hasISBN := req.Variables["isbn"]; hasISBN {
			_, _ = w.Write([]byte(`{"data": {"editions": []}}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"data": {
				"books": [{"id": 7, "slug": "carrie", "contributions": []}]
			}
		}`))
	})

	result, err := client.Lookup(context.Background(), "Carrie", "", "9780307743664")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "7", result.BookID)
}

func TestClient_Lookup_NoInputs(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	})

	result, err := client.Lookup(context.Background(), "", "", "")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestClient_GraphQLErrorSurfaces(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors": [{"message": "field 'bogus' not found"}]}`))
	})

	_, err := client.LookupByISBN(context.Background(), "123")
	require.Error(t, err)

	var apiErr *domain.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Message, "bogus")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"data": {"editions": []}}`))
	})

	result, err := client.LookupByISBN(context.Background(), "123")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_MalformedPayload(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.LookupByISBN(context.Background(), "123")
	require.Error(t, err)

	var apiErr *domain.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Message, "malformed")
}
