package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"canon-rag-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDrafts() []model.ChunkDraft {
	return []model.ChunkDraft{
		{Index: model.ChunkIndexMetadata, Content: "文件: a.pdf"},
		{Index: model.ChunkIndexSummary, Content: "summary", Keywords: []string{"kp"}},
		{Index: 0, Content: "first body chunk", Keywords: []string{"first"}, Metadata: map[string]any{"has_tables": false}},
		{Index: 1, Content: "second body chunk BROKEN"},
		{Index: 2, Content: "third body chunk"},
	}
}

func TestChunkWriterWritesAllChunks(t *testing.T) {
	store := newMemChunkStore()
	embedder := &fakeEmbedder{failOn: "BROKEN"}
	w := NewChunkWriter(store, embedder, nil, "text-embedding-v4", 3)
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	n, err := w.Write(context.Background(), 7, 3, sampleDrafts(), &expires)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, embedder.calls)

	rows := store.chunks[7]
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, sampleDrafts()[i].Index, row.ChunkIndex, "order preserved")
		assert.Equal(t, uint(3), row.AgentID)
		assert.Equal(t, &expires, row.ExpiresAt)
	}

	// 失败的分块以空向量存储，其余分块正常
	assert.Nil(t, rows[3].Vector())
	assert.Empty(t, rows[3].ModelVersion)
	assert.Equal(t, []float32{16, 1}, rows[2].Vector())
	assert.Equal(t, "text-embedding-v4", rows[2].ModelVersion)
	assert.Equal(t, []string{"first"}, rows[2].KeywordList())
	assert.Equal(t, map[string]any{"has_tables": false}, rows[2].MetadataMap())
	assert.Equal(t, []string{}, rows[0].KeywordList())
}

func TestChunkWriterReplacesPreviousSet(t *testing.T) {
	store := newMemChunkStore()
	w := NewChunkWriter(store, &fakeEmbedder{}, nil, "m", 1)

	_, err := w.Write(context.Background(), 1, 1, sampleDrafts(), nil)
	require.NoError(t, err)
	_, err = w.Write(context.Background(), 1, 1, sampleDrafts()[:2], nil)
	require.NoError(t, err)
	assert.Len(t, store.chunks[1], 2)
}

func TestChunkWriterRejectsEmptyList(t *testing.T) {
	w := NewChunkWriter(newMemChunkStore(), &fakeEmbedder{}, nil, "m", 1)
	_, err := w.Write(context.Background(), 9, 1, nil, nil)

	var ierr *IngestionError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, StageStore, ierr.Stage)
	assert.Equal(t, uint(9), ierr.DocumentID)
	assert.ErrorIs(t, err, ErrNoChunks)
}

func TestChunkWriterStoreFailure(t *testing.T) {
	store := newMemChunkStore()
	store.err = errors.New("deadlock")
	w := NewChunkWriter(store, &fakeEmbedder{}, nil, "m", 1)

	_, err := w.Write(context.Background(), 1, 1, sampleDrafts(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock")
}

func TestChunkWriterMirrorsToSearchIndex(t *testing.T) {
	mirror := &fakeMirror{}
	w := NewChunkWriter(newMemChunkStore(), &fakeEmbedder{}, mirror, "m", 2)

	_, err := w.Write(context.Background(), 4, 2, sampleDrafts(), nil)
	require.NoError(t, err)
	docs := mirror.docs[4]
	require.Len(t, docs, 5)
	assert.Equal(t, "4_-2", docs[0].ChunkKey)
	assert.Equal(t, "4_0", docs[2].ChunkKey)
	assert.Equal(t, uint(2), docs[2].AgentID)
	assert.NotNil(t, docs[2].Vector)

}

func TestChunkWriterMirrorFailureLeavesNoChunks(t *testing.T) {
	store := newMemChunkStore()
	mirror := &fakeMirror{}
	w := NewChunkWriter(store, &fakeEmbedder{}, mirror, "m", 2)

	_, err := w.Write(context.Background(), 4, 2, sampleDrafts(), nil)
	require.NoError(t, err)
	require.Len(t, store.chunks[4], 5)

	mirror.err = errors.New("index closed")
	_, err = w.Write(context.Background(), 4, 2, sampleDrafts()[:2], nil)
	assert.ErrorContains(t, err, "index closed")
	var ierr *IngestionError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, StageStore, ierr.Stage)

	// 两边都没有该文档的分块，不会一边新一边旧
	assert.Empty(t, store.chunks[4])
	assert.Empty(t, mirror.docs[4])
	assert.Equal(t, []uint{4}, mirror.deleted)
}

func TestChunkWriterWithoutEmbedder(t *testing.T) {
	store := newMemChunkStore()
	w := NewChunkWriter(store, nil, nil, "m", 1)
	n, err := w.Write(context.Background(), 1, 1, sampleDrafts(), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	for _, row := range store.chunks[1] {
		assert.Nil(t, row.Vector())
	}
}

func TestChunkWriterCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := NewChunkWriter(newMemChunkStore(), &fakeEmbedder{}, nil, "m", 1)
	_, err := w.Write(ctx, 1, 1, sampleDrafts(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
