package extract_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ask/pkg/extract"
)

func TestExtractLocalTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.txt")
	err := os.WriteFile(path, []byte("Grace period of thirty days is allowed.\n"), 0644)
	require.NoError(t, err)

	e := extract.NewWithConfig(extract.Config{})
	text, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Grace period of thirty days is allowed.", text)
}

func TestExtractUnsupportedExtension(t *testing.T) {
	e := extract.NewWithConfig(extract.Config{})

	_, err := e.Extract(context.Background(), "document.xlsx")
	assert.ErrorIs(t, err, extract.ErrUnsupportedFormat)
}

func TestExtractEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("   \n\n  "), 0644))

	e := extract.NewWithConfig(extract.Config{})
	_, err := e.Extract(context.Background(), path)
	assert.ErrorIs(t, err, extract.ErrExtraction)
}

func TestExtractHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><style>p { color: red }</style></head>
			<body>
			<nav>Menu</nav>
			<h1>Policy Terms</h1>
			<p>Grace period of thirty days is allowed for premium payment.</p>
			<script>alert("hi")</script>
			</body></html>`))
	}))
	defer srv.Close()

	e := extract.NewWithConfig(extract.Config{RateLimit: 100})
	text, err := e.Extract(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Contains(t, text, "Policy Terms")
	assert.Contains(t, text, "Grace period of thirty days is allowed for premium payment.")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "Menu")
	assert.NotContains(t, text, "color: red")
}

func TestExtractPlainTextURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Line one.\r\nLine two.\n"))
	}))
	defer srv.Close()

	e := extract.NewWithConfig(extract.Config{RateLimit: 100})
	text, err := e.Extract(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Line one.\nLine two.", text)
}

func TestExtractURLStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	e := extract.NewWithConfig(extract.Config{RateLimit: 100})
	_, err := e.Extract(context.Background(), srv.URL)
	assert.ErrorIs(t, err, extract.ErrExtraction)
}

func TestExtractUnsupportedContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	e := extract.NewWithConfig(extract.Config{RateLimit: 100})
	_, err := e.Extract(context.Background(), srv.URL)
	assert.ErrorIs(t, err, extract.ErrUnsupportedFormat)
}

func TestNormalize(t *testing.T) {
	in := "Heading\t\ttext   here.\r\n\r\n\r\n\r\nNext    paragraph. \n   \nLast line.   "
	out := extract.Normalize(in)

	assert.Equal(t, "Heading text here.\n\nNext paragraph.\n\nLast line.", out)
}
