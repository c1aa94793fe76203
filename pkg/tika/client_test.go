package tika

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"canon-rag-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rmetaResponse = `[
  {
    "Content-Type": "application/pdf",
    "xmpTPg:NPages": "4",
    "dc:title": "Metro Guide",
    "X-TIKA:Parsed-By": ["org.apache.tika.parser.DefaultParser", "org.apache.tika.parser.pdf.PDFParser"],
    "X-TIKA:content": "\n Line 2 runs north. $E = mc^2$ appears here.\n\n| Station | Line |\n| --- | --- |\n| Central | 2 |\n| Harbor | 4 |\n"
  },
  {
    "Content-Type": "image/png",
    "X-TIKA:embedded_resource_path": "/image0.png",
    "X-TIKA:Parsed-By": ["org.apache.tika.parser.ocr.TesseractOCRParser"]
  }
]`

func TestExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/rmeta/text", r.URL.Path)
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(rmetaResponse))
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL + "/"})
	res, err := c.Extract(context.Background(), strings.NewReader("%PDF"), "guide.pdf")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Text, "Line 2 runs north."))
	assert.Equal(t, 4, res.Metadata.TotalPages)
	assert.True(t, res.Metadata.OCRUsed)
	assert.Equal(t, 1, res.Metadata.OCRPages)
	assert.Equal(t, "Metro Guide", res.Metadata.Extra["dc:title"])
	require.Len(t, res.Images, 1)
	assert.Equal(t, "/image0.png", res.Images[0].Path)
	assert.Equal(t, []string{"$E = mc^2$"}, res.Formulas)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, []string{"Station", "Line"}, res.Tables[0].Headers)
	assert.Equal(t, [][]string{{"Central", "2"}, {"Harbor", "4"}}, res.Tables[0].Rows)
}

func TestExtractErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("encrypted document"))
	}))
	defer srv.Close()

	_, err := NewClient(config.TikaConfig{ServerURL: srv.URL}).Extract(context.Background(), strings.NewReader("x"), "a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "encrypted document")
}

func TestDetectFormulas(t *testing.T) {
	text := "Block $$\\int_0^1 x\\,dx$$ then \\[ a^2 + b^2 = c^2 \\] and inline $x_1$."
	assert.Equal(t, []string{`$$\int_0^1 x\,dx$$`, `\[ a^2 + b^2 = c^2 \]`, `$x_1$`}, DetectFormulas(text))
	assert.Empty(t, DetectFormulas("no math here"))
}

func TestDetectTablesIgnoresPipesWithoutSeparator(t *testing.T) {
	assert.Empty(t, DetectTables("a | b\nc | d"))
}

func TestUnpack(t *testing.T) {
	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	for _, name := range []string{"page-2_image0.png", "notes.txt", "image1.jpg"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, _ = w.Write([]byte("data:" + name))
	}
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/unpack/all", r.URL.Path)
		_, _ = w.Write(zipBuf.Bytes())
	}))
	defer srv.Close()

	dir := t.TempDir()
	images, err := NewClient(config.TikaConfig{ServerURL: srv.URL}).Unpack(context.Background(), strings.NewReader("x"), "a.pdf", dir)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, 2, images[0].Page)
	assert.Equal(t, dir, filepath.Dir(images[1].Path))

	data, err := os.ReadFile(images[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "data:page-2_image0.png", string(data))
}
