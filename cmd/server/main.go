// Package main 是 HTTP 服务的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canon-rag-go/internal/app"
	"canon-rag-go/internal/config"
	"canon-rag-go/internal/handler"
	"canon-rag-go/internal/pipeline"
	"canon-rag-go/internal/repository"
	"canon-rag-go/internal/service"
	"canon-rag-go/pkg/kafka"
	"canon-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	configPath := os.Getenv("RAG_CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	if err := log.Init(cfg.Log); err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化数据库、Redis、MinIO 和 Elasticsearch
	infra, err := app.OpenInfra(ctx, cfg, app.InfraOptions{Redis: true, Objects: true})
	if err != nil {
		log.Fatal("基础设施初始化失败", err)
	}
	defer infra.Close()

	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 4. 初始化 Service
	chunkEmbedder, queryEmbedder := app.NewEmbedder(cfg.Embedding, infra.Redis)
	docRepo := repository.NewDocumentRepository(infra.DB)
	var mirror service.MirrorCleaner
	if infra.ChunkIndex != nil {
		mirror = infra.ChunkIndex
	}
	documentService := service.NewDocumentService(docRepo, infra.Objects, producer, mirror)
	canonService := service.NewCanonService(repository.NewCanonRepository(infra.DB))
	searchService := app.NewSearchService(cfg, infra, queryEmbedder)

	// 5. 初始化入库流水线并启动后台 Kafka 消费者
	processor := app.NewProcessor(cfg, infra, chunkEmbedder)
	go func() {
		if err := kafka.StartConsumer(ctx, cfg.Kafka, processor, infra.Redis); err != nil {
			log.Error("Kafka 消费者退出", err)
		}
	}()

	// 5.1 导入 seed 目录中的文件，已导入则跳过
	go app.SeedDocuments(ctx, cfg.Server.SeedDir, cfg.Server.SeedAgentID, documentService)

	// 6. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Handlers{
		Documents: handler.NewDocumentHandler(documentService),
		Search:    handler.NewSearchHandler(searchService),
		Canon:     handler.NewCanonHandler(canonService),
		Analysis:  handler.NewAnalysisHandler(pipeline.NewStructureAnalyzer(cfg.Analysis)),
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s", err)
		}
	}()

	<-ctx.Done()
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
