package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"canon-rag-go/internal/model"
)

type fakeExtractor struct {
	result *model.ExtractionResult
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, r io.Reader, fileName string) (*model.ExtractionResult, error) {
	f.calls++
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	return &res, nil
}

// fakeEmbedder 返回固定向量，内容包含 failOn 时报错。
type fakeEmbedder struct {
	mu     sync.Mutex
	failOn string
	calls  int
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("embedding service unavailable")
	}
	return []float32{float32(len([]rune(text))), 1}, nil
}

// memChunkStore 模拟事务：beforeCommit 失败时保留旧分块。
type memChunkStore struct {
	mu     sync.Mutex
	chunks map[uint][]*model.DocumentChunk
	err    error
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{chunks: map[uint][]*model.DocumentChunk{}}
}

func (s *memChunkStore) ReplaceByDocumentID(ctx context.Context, documentID uint, chunks []*model.DocumentChunk, beforeCommit func() error) error {
	if s.err != nil {
		return s.err
	}
	if beforeCommit != nil {
		if err := beforeCommit(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[documentID] = chunks
	return nil
}

func (s *memChunkStore) DeleteByDocumentID(ctx context.Context, documentID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, documentID)
	return nil
}

// fakeMirror 和 Elasticsearch 一样先删旧分块再批量写入，写入失败时旧分块已不在。
type fakeMirror struct {
	docs    map[uint][]model.EsChunkDocument
	err     error
	deleted []uint
}

func (m *fakeMirror) ReplaceDocumentChunks(ctx context.Context, documentID uint, docs []model.EsChunkDocument) error {
	if m.docs == nil {
		m.docs = map[uint][]model.EsChunkDocument{}
	}
	delete(m.docs, documentID)
	if m.err != nil {
		return m.err
	}
	m.docs[documentID] = docs
	return nil
}

func (m *fakeMirror) DeleteByDocument(ctx context.Context, documentID uint) error {
	m.deleted = append(m.deleted, documentID)
	delete(m.docs, documentID)
	return nil
}

// stubChunker 返回固定的分块结果。
type stubChunker struct {
	drafts []model.ChunkDraft
	err    error
}

func (c *stubChunker) Chunk(ctx context.Context, extraction *model.ExtractionResult) ([]model.ChunkDraft, error) {
	return c.drafts, c.err
}

type fakeDocuments struct {
	docs map[uint]*model.Document
}

func (f *fakeDocuments) FindByID(ctx context.Context, id uint) (*model.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocuments) Update(ctx context.Context, doc *model.Document) error {
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

type fakeUnpacker struct {
	images []model.ExtractedImage
}

func (f *fakeUnpacker) Unpack(ctx context.Context, r io.Reader, fileName, destDir string) ([]model.ExtractedImage, error) {
	return f.images, nil
}

type fakeVision struct {
	calls []string
}

func (f *fakeVision) AnalyzeImage(ctx context.Context, imagePath string, pageNumber int, kindHint string) (string, error) {
	f.calls = append(f.calls, imagePath)
	return "Subway map showing line transfer stations near " + kindHint, nil
}
