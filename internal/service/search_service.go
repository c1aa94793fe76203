package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"canon-rag-go/internal/config"
	"canon-rag-go/internal/model"
	"canon-rag-go/internal/repository"
	"canon-rag-go/internal/retrieval"
	"canon-rag-go/pkg/embedding"
	"canon-rag-go/pkg/log"
)

const unknownFileName = "未知文件"

// SearchService 接口定义了检索操作。
type SearchService interface {
	SearchDocumentChunks(ctx context.Context, agentID uint, query string, limit int) ([]model.RankedChunk, error)
}

type searchService struct {
	canon      CanonService
	candidates CandidateSource
	documents  repository.DocumentRepository
	embedder   embedding.Client
	cfg        config.RetrievalConfig
	now        func() time.Time
}

// SearchOption 配置 searchService 的可选项。
type SearchOption func(*searchService)

// WithClock 替换当前时间来源，用于过期判断。
func WithClock(now func() time.Time) SearchOption {
	return func(s *searchService) { s.now = now }
}

// NewSearchService 创建一个新的 SearchService 实例。embedder 可以为 nil，此时只做关键词检索。
func NewSearchService(
	canon CanonService,
	candidates CandidateSource,
	documents repository.DocumentRepository,
	embedder embedding.Client,
	cfg config.RetrievalConfig,
	opts ...SearchOption,
) SearchService {
	s := &searchService{
		canon:      canon,
		candidates: candidates,
		documents:  documents,
		embedder:   embedder,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchDocumentChunks 依次执行：正典范围解析、候选加载、混合打分、预算打包、内容压缩。
func (s *searchService) SearchDocumentChunks(ctx context.Context, agentID uint, query string, limit int) ([]model.RankedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: 查询不能为空", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
		if limit <= 0 {
			limit = 3
		}
	}
	log.Infof("[SearchService] 开始检索, agent: %d, query: '%s', limit: %d", agentID, query, limit)

	// 1. 正典范围
	scope, err := s.canon.ResolveScope(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if scope.AllowsNothing() {
		log.Warnf("[SearchService] agent %d 的正典列表为空, 返回空结果", agentID)
		return []model.RankedChunk{}, nil
	}

	// 2. 候选分块
	candidates, err := s.candidates.Candidates(ctx, agentID, scope.Filter(), s.now())
	if err != nil {
		return nil, fmt.Errorf("加载候选分块失败: %w", err)
	}
	log.Infof("[SearchService] 步骤2: 加载候选分块 %d 个 (locked=%v)", len(candidates), scope.Locked)
	if len(candidates) == 0 {
		return []model.RankedChunk{}, nil
	}

	// 3. 查询向量化，失败时退化为纯关键词检索
	var queryVector []float32
	if s.embedder != nil {
		queryVector, err = s.embedder.CreateEmbedding(ctx, query)
		if err != nil {
			log.Warnf("[SearchService] 查询向量化失败, 仅使用关键词打分: %v", err)
			queryVector = nil
		}
	}

	// 4. 打分与打包
	scored := retrieval.Score(query, queryVector, candidates, s.weights())
	packed := retrieval.Pack(scored, s.packOptions(limit))
	log.Infof("[SearchService] 步骤4: 相关分块 %d 个, 打包 %d 个, 预估 %d tokens", len(scored), len(packed), retrieval.TotalTokens(packed))

	// 5. 内容压缩
	names := s.fileNames(ctx, packed)
	results := make([]model.RankedChunk, 0, len(packed))
	for _, c := range packed {
		opt := retrieval.Optimize(c.Content, s.cfg.MaxChunkLength)
		name, ok := names[c.DocumentID]
		if !ok {
			name = unknownFileName
		}
		keywords := c.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		results = append(results, model.RankedChunk{
			DocumentID:      c.DocumentID,
			FileName:        name,
			ChunkIndex:      c.ChunkIndex,
			Content:         opt.Content,
			Keywords:        keywords,
			Metadata:        c.Metadata,
			KeywordScore:    c.KeywordScore,
			SemanticScore:   c.SemanticScore,
			Score:           c.Score,
			OriginalLength:  opt.OriginalLength,
			DedupedLength:   opt.DedupedLength,
			FinalLength:     opt.FinalLength,
			EstimatedTokens: opt.EstimatedTokens,
		})
	}
	return results, nil
}

func (s *searchService) weights() retrieval.Weights {
	w := retrieval.DefaultWeights()
	if s.cfg.KeywordWeight != 0 || s.cfg.SemanticWeight != 0 {
		w.Keyword = s.cfg.KeywordWeight
		w.Semantic = s.cfg.SemanticWeight
	}
	if s.cfg.MinScore != 0 {
		w.MinScore = s.cfg.MinScore
	}
	return w
}

// packOptions 以 limit 作为分块上限，同时不超过配置的 MaxChunks。
func (s *searchService) packOptions(limit int) retrieval.PackOptions {
	opts := retrieval.DefaultPackOptions()
	if s.cfg.TokenBudget > 0 {
		opts.TokenBudget = s.cfg.TokenBudget
	}
	if s.cfg.ReservedTokens > 0 {
		opts.ReservedTokens = s.cfg.ReservedTokens
	}
	opts.MaxChunks = limit
	if s.cfg.MaxChunks > 0 && s.cfg.MaxChunks < limit {
		opts.MaxChunks = s.cfg.MaxChunks
	}
	opts.MinChunks = s.cfg.MinChunks
	if opts.MinChunks > opts.MaxChunks {
		opts.MinChunks = opts.MaxChunks
	}
	return opts
}

// fileNames 批量查询文档名，失败时只记录日志。
func (s *searchService) fileNames(ctx context.Context, chunks []retrieval.ScoredChunk) map[uint]string {
	names := map[uint]string{}
	if s.documents == nil || len(chunks) == 0 {
		return names
	}
	seen := map[uint]struct{}{}
	var ids []uint
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}
	docs, err := s.documents.FindByIDs(ctx, ids)
	if err != nil {
		log.Errorf("[SearchService] 批量查询文件名失败: %v", err)
		return names
	}
	for _, d := range docs {
		names[d.ID] = d.FileName
	}
	return names
}
