package pipeline

import (
	"strings"
	"testing"

	"canon-rag-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAugmentChunksAddsMetadataAndSummary(t *testing.T) {
	body := []model.ChunkDraft{{Index: 0, Content: "body one"}, {Index: 1, Content: "body two"}}
	keyPoints := []string{"a1", "b2", "c3", "d4", "e5", "f6"}

	out := AugmentChunks(body, "Short summary.", keyPoints, "Seoul_Metro-Map.pdf")
	require.Len(t, out, 4)

	assert.Equal(t, model.ChunkIndexMetadata, out[0].Index)
	assert.Contains(t, out[0].Content, "Seoul_Metro-Map.pdf")
	assert.Contains(t, out[0].Content, "Short summary.")
	assert.Equal(t, []string{"seoul", "metro", "map"}, out[0].Keywords)
	assert.Equal(t, "file_metadata", out[0].Metadata["type"])

	assert.Equal(t, model.ChunkIndexSummary, out[1].Index)
	assert.Equal(t, "Short summary.", out[1].Content)
	assert.Equal(t, []string{"a1", "b2", "c3", "d4", "e5"}, out[1].Keywords)

	assert.Equal(t, body, out[2:])
}

func TestAugmentChunksOptionalParts(t *testing.T) {
	body := []model.ChunkDraft{{Index: 0, Content: "body"}}

	noSummary := AugmentChunks(body, "  ", nil, "notes.txt")
	require.Len(t, noSummary, 2)
	assert.Equal(t, model.ChunkIndexMetadata, noSummary[0].Index)
	assert.Equal(t, "文件: notes.txt", noSummary[0].Content)

	noName := AugmentChunks(body, "summary", nil, "")
	require.Len(t, noName, 2)
	assert.Equal(t, model.ChunkIndexSummary, noName[0].Index)
	assert.Empty(t, noName[0].Keywords)

	assert.Equal(t, body, AugmentChunks(body, "", nil, ""))
}

func TestAugmentChunksExcerptsLongSummary(t *testing.T) {
	summary := strings.Repeat("가", 300)
	out := AugmentChunks(nil, summary, nil, "doc.pdf")
	require.Len(t, out, 2)
	assert.Equal(t, "文件: doc.pdf\n摘要: "+strings.Repeat("가", 200)+"...", out[0].Content)
	assert.Equal(t, summary, out[1].Content)
}
