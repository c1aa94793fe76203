// Package app 负责把配置、基础设施和各层服务组装起来，供 HTTP 服务和命令行工具共用。
package app

import (
	"context"
	"fmt"
	"time"

	"canon-rag-go/internal/config"
	"canon-rag-go/internal/pipeline"
	"canon-rag-go/internal/repository"
	"canon-rag-go/internal/service"
	"canon-rag-go/pkg/database"
	"canon-rag-go/pkg/embedding"
	"canon-rag-go/pkg/es"
	"canon-rag-go/pkg/log"
	"canon-rag-go/pkg/storage"
	"canon-rag-go/pkg/tika"
	"canon-rag-go/pkg/vision"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Infra 持有外部依赖的连接。Redis、MinIO 与 Elasticsearch 可能为 nil。
type Infra struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Objects    *storage.ObjectStore
	ChunkIndex *es.ChunkIndex
}

// InfraOptions 选择需要建立的连接，命令行工具通常不需要对象存储。
type InfraOptions struct {
	Redis   bool
	Objects bool
}

// OpenInfra 连接数据库并执行迁移，再按需连接 Redis、MinIO 和 Elasticsearch。
func OpenInfra(ctx context.Context, cfg config.Config, opts InfraOptions) (*Infra, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	infra := &Infra{DB: db}

	if opts.Redis {
		rdb, err := database.NewRedis(ctx, cfg.Database.Redis)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Redis = rdb
	}
	if opts.Objects {
		objects, err := storage.NewObjectStore(ctx, cfg.MinIO)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Objects = objects
	}
	if cfg.Elasticsearch.Enabled {
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("初始化 Elasticsearch 客户端失败: %w", err)
		}
		index := es.NewChunkIndex(client, cfg.Elasticsearch.IndexName, cfg.Elasticsearch.Dims)
		if err := index.EnsureIndex(ctx); err != nil {
			infra.Close()
			return nil, err
		}
		infra.ChunkIndex = index
	}
	return infra, nil
}

// Close 关闭数据库与 Redis 连接。
func (i *Infra) Close() {
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.DB != nil {
		if sqlDB, err := i.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// NewEmbedder 创建向量客户端；有 Redis 时为查询向量加上缓存。
func NewEmbedder(cfg config.EmbeddingConfig, rdb *redis.Client) (chunks embedding.Client, queries embedding.Client) {
	base := embedding.NewClient(cfg)
	if rdb == nil {
		return base, base
	}
	ttl := time.Duration(cfg.QueryCacheTTLMinutes) * time.Minute
	return base, embedding.NewCachedClient(base, rdb, cfg.Model, ttl)
}

// NewProcessor 组装入库流水线。
func NewProcessor(cfg config.Config, infra *Infra, embedder embedding.Client) *pipeline.Processor {
	var mirror pipeline.ChunkMirror
	if infra.ChunkIndex != nil {
		mirror = infra.ChunkIndex
	}
	writer := pipeline.NewChunkWriter(
		repository.NewChunkRepository(infra.DB),
		embedder,
		mirror,
		cfg.Embedding.Model,
		cfg.Ingestion.EmbeddingConcurrency,
	)

	tikaClient := tika.NewClient(cfg.Tika)
	opts := []pipeline.Option{
		pipeline.WithDocumentStore(repository.NewDocumentRepository(infra.DB)),
	}
	if infra.Objects != nil {
		opts = append(opts, pipeline.WithObjectStore(infra.Objects))
	}
	if cfg.Vision.BaseURL != "" {
		opts = append(opts, pipeline.WithVision(tikaClient, vision.NewClient(cfg.Vision)))
	}
	return pipeline.NewProcessor(
		tikaClient,
		pipeline.NewStructureAnalyzer(cfg.Analysis),
		writer,
		cfg.Ingestion,
		opts...,
	)
}

// NewSearchService 组装检索服务，候选来源由 retrieval.candidate_source 决定。
func NewSearchService(cfg config.Config, infra *Infra, embedder embedding.Client) service.SearchService {
	chunks := repository.NewChunkRepository(infra.DB)
	var candidates service.CandidateSource
	switch {
	case cfg.Retrieval.CandidateSource == "elasticsearch" && infra.ChunkIndex != nil:
		candidates = service.NewESCandidateSource(infra.ChunkIndex, cfg.Retrieval.CandidatePageSize)
	default:
		if cfg.Retrieval.CandidateSource == "elasticsearch" {
			log.Warnf("candidate_source 为 elasticsearch 但未启用 Elasticsearch, 使用数据库")
		}
		candidates = service.NewDBCandidateSource(chunks)
	}
	return service.NewSearchService(
		service.NewCanonService(repository.NewCanonRepository(infra.DB)),
		candidates,
		repository.NewDocumentRepository(infra.DB),
		embedder,
		cfg.Retrieval,
	)
}
