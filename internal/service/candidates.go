package service

import (
	"context"
	"time"

	"canon-rag-go/internal/model"
	"canon-rag-go/internal/repository"
	"canon-rag-go/internal/retrieval"
)

// CandidateSource 加载 agent 在 now 时刻可检索的分块。documentIDs 为 nil 表示不限制文档。
type CandidateSource interface {
	Candidates(ctx context.Context, agentID uint, documentIDs []uint, now time.Time) ([]retrieval.Chunk, error)
}

type dbCandidateSource struct {
	chunks repository.ChunkRepository
}

// NewDBCandidateSource 从关系库读取全部候选分块。
func NewDBCandidateSource(chunks repository.ChunkRepository) CandidateSource {
	return &dbCandidateSource{chunks: chunks}
}

func (s *dbCandidateSource) Candidates(ctx context.Context, agentID uint, documentIDs []uint, now time.Time) ([]retrieval.Chunk, error) {
	rows, err := s.chunks.FindRetrievable(ctx, agentID, documentIDs, now)
	if err != nil {
		return nil, err
	}
	out := make([]retrieval.Chunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, retrieval.Chunk{
			ID:         r.ID,
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Content:    r.Content,
			Keywords:   r.KeywordList(),
			Metadata:   r.MetadataMap(),
			Embedding:  r.Vector(),
		})
	}
	return out, nil
}

// ChunkSearcher 是 Elasticsearch 镜像的过滤查询，按 pageSize 分页取回全部命中。
type ChunkSearcher interface {
	SearchCandidates(ctx context.Context, agentID uint, documentIDs []uint, now time.Time, pageSize int) ([]model.EsChunkDocument, error)
}

type esCandidateSource struct {
	index    ChunkSearcher
	pageSize int
}

// NewESCandidateSource 从 Elasticsearch 镜像读取候选分块，过滤条件与关系库一致。
func NewESCandidateSource(index ChunkSearcher, pageSize int) CandidateSource {
	return &esCandidateSource{index: index, pageSize: pageSize}
}

func (s *esCandidateSource) Candidates(ctx context.Context, agentID uint, documentIDs []uint, now time.Time) ([]retrieval.Chunk, error) {
	docs, err := s.index.SearchCandidates(ctx, agentID, documentIDs, now, s.pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]retrieval.Chunk, 0, len(docs))
	for _, d := range docs {
		out = append(out, retrieval.Chunk{
			DocumentID: d.DocumentID,
			ChunkIndex: d.ChunkIndex,
			Content:    d.Content,
			Keywords:   d.Keywords,
			Metadata:   d.Metadata,
			Embedding:  d.Vector,
		})
	}
	return out, nil
}
