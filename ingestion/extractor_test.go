package ingestion

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnstructuredExtractor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/general/v0/general", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("unstructured-api-key"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		assert.Equal(t, "hi_res", r.FormValue("strategy"))
		file, _, err := r.FormFile("files")
		if assert.NoError(t, err) {
			data, _ := io.ReadAll(file)
			assert.Equal(t, fakePDF, data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"type": "Title", "text": "Quarterly report", "metadata": {"page_number": 1}},
			{"type": "NarrativeText", "text": "Revenue grew.", "metadata": {"page_number": 2}},
			{"type": "Footer", "text": "confidential", "metadata": {}}
		]`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, fakePDF, 0o600))

	extractor := NewUnstructuredExtractor(server.URL+"/", "secret")
	blocks, err := extractor.Extract(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, "hi_res", extractor.Name())
	assert.Equal(t, []Block{
		{Text: "Quarterly report", Page: 1},
		{Text: "Revenue grew.", Page: 2},
		{Text: "confidential", Page: 0},
	}, blocks)
}

func TestUnstructuredExtractorAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, fakePDF, 0o600))

	_, err := NewUnstructuredExtractor(server.URL, "").Extract(context.Background(), path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestParseUnstructuredElementsRejectsNonArray(t *testing.T) {
	_, err := parseUnstructuredElements([]byte(`{"detail": "oops"}`))
	assert.Error(t, err)

	_, err = parseUnstructuredElements([]byte(`not json`))
	assert.Error(t, err)

	blocks, err := parseUnstructuredElements([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestPDFExtractorRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf at all"), 0o600))

	_, err := PDFExtractor{}.Extract(context.Background(), path)

	assert.Error(t, err)
}

func TestNormalizePlainText(t *testing.T) {
	assert.Equal(t, "a\nb\n\nc", normalizePlainText("a  \r\nb\t\r\rc"))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatPDF, DetectFormat("x.bin", fakePDF))
	assert.Equal(t, FormatUnknown, DetectFormat("x.pdf", []byte("hello")))
	assert.Equal(t, FormatPDF, DetectFormat("X.PDF", nil))
	assert.Equal(t, FormatUnknown, DetectFormat("x.txt", nil))
}
