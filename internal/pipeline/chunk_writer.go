package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"canon-rag-go/internal/model"
	"canon-rag-go/pkg/embedding"
	"canon-rag-go/pkg/log"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// ChunkStore 是分块的持久化存储。ReplaceByDocumentID 必须在一个事务里先删后插，
// beforeCommit 非 nil 时在提交前调用，返回错误则整个事务回滚。
type ChunkStore interface {
	ReplaceByDocumentID(ctx context.Context, documentID uint, chunks []*model.DocumentChunk, beforeCommit func() error) error
	DeleteByDocumentID(ctx context.Context, documentID uint) error
}

// ChunkMirror 是可选的分块镜像（Elasticsearch）。
type ChunkMirror interface {
	ReplaceDocumentChunks(ctx context.Context, documentID uint, docs []model.EsChunkDocument) error
	DeleteByDocument(ctx context.Context, documentID uint) error
}

// ChunkWriter 为分块生成向量并整体替换文档的分块集合。
type ChunkWriter struct {
	store        ChunkStore
	embedder     embedding.Client
	mirror       ChunkMirror
	modelVersion string
	concurrency  int
}

// NewChunkWriter 创建写入器。mirror 可以为 nil；concurrency <= 1 时顺序向量化。
func NewChunkWriter(store ChunkStore, embedder embedding.Client, mirror ChunkMirror, modelVersion string, concurrency int) *ChunkWriter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ChunkWriter{
		store:        store,
		embedder:     embedder,
		mirror:       mirror,
		modelVersion: modelVersion,
		concurrency:  concurrency,
	}
}

// Write 返回写入的分块数。单个分块向量化失败只记录日志，该分块的向量置空。
func (w *ChunkWriter) Write(ctx context.Context, documentID, agentID uint, drafts []model.ChunkDraft, expiresAt *time.Time) (int, error) {
	if len(drafts) == 0 {
		return 0, newIngestionError(StageStore, documentID, ErrNoChunks)
	}

	vectors, err := w.embedAll(ctx, documentID, drafts)
	if err != nil {
		return 0, newIngestionError(StageStore, documentID, err)
	}

	rows := make([]*model.DocumentChunk, 0, len(drafts))
	for i, d := range drafts {
		row, err := w.toRow(documentID, agentID, d, vectors[i], expiresAt)
		if err != nil {
			return 0, newIngestionError(StageStore, documentID, err)
		}
		rows = append(rows, row)
	}

	// 镜像在数据库事务提交前写入，镜像失败时数据库回滚
	var mirror func() error
	if w.mirror != nil {
		docs := w.toEsDocuments(documentID, agentID, drafts, rows, vectors, expiresAt)
		mirror = func() error {
			if err := w.mirror.ReplaceDocumentChunks(ctx, documentID, docs); err != nil {
				return fmt.Errorf("同步分块到 Elasticsearch 失败: %w", err)
			}
			return nil
		}
	}

	if err := w.store.ReplaceByDocumentID(ctx, documentID, rows, mirror); err != nil {
		// 镜像可能已删掉旧分块，两边都清空，不留下不一致的半成品
		if derr := w.Discard(ctx, documentID); derr != nil {
			log.Errorf("[ChunkWriter] 清理文档 %d 的分块失败: %v", documentID, derr)
		}
		return 0, newIngestionError(StageStore, documentID, fmt.Errorf("替换文档分块失败: %w", err))
	}
	log.Infof("[ChunkWriter] 文档 %d 写入 %d 个分块", documentID, len(rows))
	return len(rows), nil
}

// Discard 从存储和镜像中删除文档的全部分块。
func (w *ChunkWriter) Discard(ctx context.Context, documentID uint) error {
	ctx = context.WithoutCancel(ctx)
	err := w.store.DeleteByDocumentID(ctx, documentID)
	if w.mirror != nil {
		err = errors.Join(err, w.mirror.DeleteByDocument(ctx, documentID))
	}
	return err
}

func (w *ChunkWriter) toEsDocuments(documentID, agentID uint, drafts []model.ChunkDraft, rows []*model.DocumentChunk, vectors [][]float32, expiresAt *time.Time) []model.EsChunkDocument {
	docs := make([]model.EsChunkDocument, 0, len(rows))
	for i, row := range rows {
		docs = append(docs, model.EsChunkDocument{
			ChunkKey:          fmt.Sprintf("%d_%d", documentID, row.ChunkIndex),
			DocumentID:        documentID,
			AgentID:           agentID,
			ChunkIndex:        row.ChunkIndex,
			Content:           row.Content,
			Keywords:          drafts[i].Keywords,
			Metadata:          drafts[i].Metadata,
			Vector:            vectors[i],
			ModelVersion:      row.ModelVersion,
			ExpiresAt:         expiresAt,
			DocumentExpiresAt: expiresAt,
		})
	}
	return docs
}

// embedAll 在有限并发下为所有分块生成向量，失败的分块对应 nil。
func (w *ChunkWriter) embedAll(ctx context.Context, documentID uint, drafts []model.ChunkDraft) ([][]float32, error) {
	vectors := make([][]float32, len(drafts))
	if w.embedder == nil {
		return vectors, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i := range drafts {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := w.embedder.CreateEmbedding(gctx, drafts[i].Content)
			if err != nil {
				log.Warnf("[ChunkWriter] 文档 %d 分块 %d 向量化失败, 以空向量存储: %v", documentID, drafts[i].Index, err)
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (w *ChunkWriter) toRow(documentID, agentID uint, d model.ChunkDraft, vec []float32, expiresAt *time.Time) (*model.DocumentChunk, error) {
	keywords := d.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	kwJSON, err := json.Marshal(keywords)
	if err != nil {
		return nil, fmt.Errorf("序列化关键词失败: %w", err)
	}
	metadata := d.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("序列化元数据失败: %w", err)
	}

	row := &model.DocumentChunk{
		DocumentID: documentID,
		AgentID:    agentID,
		ChunkIndex: d.Index,
		Content:    d.Content,
		Keywords:   datatypes.JSON(kwJSON),
		Metadata:   datatypes.JSON(metaJSON),
		ExpiresAt:  expiresAt,
	}
	if vec != nil {
		vecJSON, err := json.Marshal(vec)
		if err != nil {
			return nil, fmt.Errorf("序列化向量失败: %w", err)
		}
		row.Embedding = datatypes.JSON(vecJSON)
		row.ModelVersion = w.modelVersion
	}
	return row, nil
}
