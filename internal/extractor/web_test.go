package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/parchment-ai/corpusd/internal/domain"
)

func testWebStrategy() *WebStrategy {
	return &WebStrategy{
		client:    &http.Client{Timeout: 5 * time.Second},
		limiter:   rate.NewLimiter(rate.Inf, 1),
		maxPages:  5,
		userAgent: defaultUserAgent,
	}
}

func TestWebExtractSinglePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/doc":
			w.Write([]byte("<html><body><h1>Refund Policy</h1><p>Refunds take 5 days.</p></body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	s := testWebStrategy()
	result, err := s.Extract(context.Background(), []byte(server.URL+"/doc"), "")

	require.NoError(t, err)
	assert.Contains(t, result.Text, "Refund Policy")
	assert.Contains(t, result.Text, "Refunds take 5 days.")
	assert.Equal(t, "1", result.Metadata[MetaPagesFetched])
	assert.Equal(t, server.URL+"/doc", result.Metadata[MetaSourceURL])
}

func TestWebExtractRobotsDisallowedIsEmptyNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		default:
			w.Write([]byte("<html><body>secret</body></html>"))
		}
	}))
	defer server.Close()

	s := testWebStrategy()
	result, err := s.Extract(context.Background(), []byte(server.URL+"/private/page"), "")

	require.NoError(t, err)
	assert.Empty(t, result.Text)
	assert.Equal(t, "true", result.Metadata[MetaRobotsDisallowed])
}

func TestWebExtractFollowsRelNextPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/p1":
			w.Write([]byte(`<html><body><p>first part</p><a rel="next" href="/p2">Next</a></body></html>`))
		case "/p2":
			w.Write([]byte(`<html><body><p>second part</p></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	s := testWebStrategy()
	result, err := s.Extract(context.Background(), []byte(server.URL+"/p1"), "")

	require.NoError(t, err)
	assert.Contains(t, result.Text, "first part")
	assert.Contains(t, result.Text, "second part")
	assert.Equal(t, "2", result.Metadata[MetaPagesFetched])
}

func TestWebExtractStopsOnRepeatedContent(t *testing.T) {
	page := `<html><body><p>same thing</p><a rel="next" href="/again">Next</a></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(page))
	}))
	defer server.Close()

	s := testWebStrategy()
	result, err := s.Extract(context.Background(), []byte(server.URL+"/start"), "")

	require.NoError(t, err)
	assert.Equal(t, "1", result.Metadata[MetaPagesFetched])
}

func TestWebExtractPageQueryPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/robots.txt":
			http.NotFound(w, r)
		case r.URL.Query().Get("page") == "1":
			w.Write([]byte("<html><body><p>results page one</p></body></html>"))
		case r.URL.Query().Get("page") == "2":
			w.Write([]byte("<html><body><p>results page two</p></body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	s := testWebStrategy()
	result, err := s.Extract(context.Background(), []byte(server.URL+"/list?page=1"), "")

	require.NoError(t, err)
	assert.Contains(t, result.Text, "results page one")
	assert.Contains(t, result.Text, "results page two")
}

func TestWebExtractPagePathPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/archive/page/1":
			w.Write([]byte("<html><body><p>archive page one</p></body></html>"))
		case "/archive/page/2":
			w.Write([]byte("<html><body><p>archive page two</p></body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	s := testWebStrategy()
	result, err := s.Extract(context.Background(), []byte(server.URL+"/archive/page/1"), "")

	require.NoError(t, err)
	assert.Contains(t, result.Text, "archive page one")
	assert.Contains(t, result.Text, "archive page two")
	assert.Equal(t, "2", result.Metadata[MetaPagesFetched])
}

func TestWebExtractRobotsWildcardGroupGoverns(t *testing.T) {
	// A permissive group naming this service does not override a restrictive
	// wildcard group; rules are read as a generic crawler.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.Write([]byte("User-agent: corpusd\nAllow: /\n\nUser-agent: *\nDisallow: /private\n"))
		default:
			w.Write([]byte("<html><body>secret</body></html>"))
		}
	}))
	defer server.Close()

	s := testWebStrategy()
	result, err := s.Extract(context.Background(), []byte(server.URL+"/private/page"), "")

	require.NoError(t, err)
	assert.Empty(t, result.Text)
	assert.Equal(t, "true", result.Metadata[MetaRobotsDisallowed])
}

func TestWebExtractBrokenPaginationKeepsFetchedPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/p1":
			w.Write([]byte(`<html><body><p>alive</p><a rel="next" href="/gone">Next</a></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	s := testWebStrategy()
	result, err := s.Extract(context.Background(), []byte(server.URL+"/p1"), "")

	require.NoError(t, err)
	assert.Contains(t, result.Text, "alive")
	assert.Equal(t, "1", result.Metadata[MetaPagesFetched])
}

func TestWebExtractInvalidURL(t *testing.T) {
	s := testWebStrategy()

	_, err := s.Extract(context.Background(), []byte("ftp://example.com/file"), "")
	require.Error(t, err)

	_, err = s.Extract(context.Background(), []byte("not a url at all"), "")
	require.Error(t, err)
}

func TestWebExtractFirstFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	s := testWebStrategy()
	_, err := s.Extract(context.Background(), []byte(server.URL+"/doc"), "")

	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to fetch")
}

func TestWebExtractRendererPreferredOverPlainFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("<html><body><p>static shell</p></body></html>"))
	}))
	defer server.Close()

	s := testWebStrategy()
	s.render = func(ctx context.Context, pageURL string) (string, error) {
		return "<html><body><p>hydrated content</p></body></html>", nil
	}

	result, err := s.Extract(context.Background(), []byte(server.URL+"/app"), "")

	require.NoError(t, err)
	assert.Contains(t, result.Text, "hydrated content")
	assert.NotContains(t, result.Text, "static shell")
}

func TestWebExtractEmptyPageFailsExtraction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("<html><body></body></html>"))
	}))
	defer server.Close()

	s := testWebStrategy()
	_, err := s.Extract(context.Background(), []byte(server.URL+"/empty"), "")

	assert.ErrorIs(t, err, domain.ErrNoExtractableText)
}
