// Package pipeline 定义了文档入库的核心流程：提取、结构分析、分块、增强与写入。
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"canon-rag-go/internal/config"
	"canon-rag-go/internal/model"
	"canon-rag-go/pkg/log"
	"canon-rag-go/pkg/tasks"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Extractor 是外部文本提取服务。
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, fileName string) (*model.ExtractionResult, error)
}

// ImageUnpacker 从原始文件中导出内嵌图片到 destDir。
type ImageUnpacker interface {
	Unpack(ctx context.Context, r io.Reader, fileName, destDir string) ([]model.ExtractedImage, error)
}

// VisionClient 为单张图片生成文字描述。
type VisionClient interface {
	AnalyzeImage(ctx context.Context, imagePath string, pageNumber int, kindHint string) (string, error)
}

// DocumentStore 是 Processor 需要的文档表操作。
type DocumentStore interface {
	FindByID(ctx context.Context, id uint) (*model.Document, error)
	Update(ctx context.Context, doc *model.Document) error
}

// ObjectStore 用于 Kafka 任务从对象存储取回原始文件。
type ObjectStore interface {
	Download(ctx context.Context, objectName, destPath string) error
}

// ProcessOptions 控制单次入库。
type ProcessOptions struct {
	RunVision bool
	ExpiresAt *time.Time
}

// ProcessResult 是 ProcessFile 的返回，Error 在失败时给出可读原因。
type ProcessResult struct {
	Success    bool                     `json:"success"`
	ChunkCount int                      `json:"chunkCount"`
	Text       string                   `json:"text,omitempty"`
	Analysis   *model.StructureAnalysis `json:"analysis,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// Processor 封装了文件处理的所有依赖和逻辑。
type Processor struct {
	extractor  Extractor
	unpacker   ImageUnpacker
	vision     VisionClient
	analyzer   *StructureAnalyzer
	chunker    Chunker
	summarizer Summarizer
	writer     *ChunkWriter
	documents  DocumentStore
	objects    ObjectStore
	cfg        config.IngestionConfig
}

// Option 配置 Processor 的可选依赖。
type Option func(*Processor)

// WithVision 启用视觉分析；unpacker 负责导出图片。
func WithVision(unpacker ImageUnpacker, vision VisionClient) Option {
	return func(p *Processor) {
		p.unpacker = unpacker
		p.vision = vision
	}
}

// WithDocumentStore 让 Processor 在处理结束后回写文档状态。
func WithDocumentStore(documents DocumentStore) Option {
	return func(p *Processor) { p.documents = documents }
}

// WithObjectStore 启用 Kafka 任务所需的对象下载。
func WithObjectStore(objects ObjectStore) Option {
	return func(p *Processor) { p.objects = objects }
}

// WithChunker 替换默认的段落分块器。
func WithChunker(chunker Chunker) Option {
	return func(p *Processor) { p.chunker = chunker }
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	extractor Extractor,
	analyzer *StructureAnalyzer,
	writer *ChunkWriter,
	cfg config.IngestionConfig,
	opts ...Option,
) *Processor {
	p := &Processor{
		extractor:  extractor,
		analyzer:   analyzer,
		writer:     writer,
		cfg:        cfg,
		chunker:    NewParagraphChunker(cfg.ChunkMinSize, cfg.ChunkMaxSize),
		summarizer: NewFrequencySummarizer(cfg.SummarySentences, cfg.KeyPoints),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process 处理一条 Kafka 入库任务：下载原始文件到临时目录后交给 ProcessFile。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentIngestionTask) error {
	log.Infof("[Processor] 开始处理入库任务, DocumentID: %d, AgentID: %d, FileName: %s", task.DocumentID, task.AgentID, task.FileName)
	if p.objects == nil {
		return errors.New("未配置对象存储，无法处理入库任务")
	}

	opts := ProcessOptions{RunVision: task.RunVision || p.cfg.RunVision}
	if p.documents != nil {
		doc, err := p.documents.FindByID(ctx, task.DocumentID)
		if err != nil {
			return fmt.Errorf("查询文档 %d 失败: %w", task.DocumentID, err)
		}
		opts.ExpiresAt = doc.ExpiresAt
	}

	tmpPath := filepath.Join(p.tempDir(), uuid.NewString()+filepath.Ext(task.FileName))
	log.Infof("[Processor] 步骤1: 从对象存储下载文件, Object: %s", task.ObjectName)
	if err := p.objects.Download(ctx, task.ObjectName, tmpPath); err != nil {
		ierr := newIngestionError(StageDownload, task.DocumentID, err)
		p.markFailed(ctx, task.DocumentID, ierr)
		return ierr
	}
	defer os.Remove(tmpPath)

	res, err := p.ProcessFile(ctx, tmpPath, task.DocumentID, task.AgentID, task.FileName, opts)
	if err != nil {
		return err
	}
	log.Infof("[Processor] 入库任务完成, DocumentID: %d, 分块数: %d", task.DocumentID, res.ChunkCount)
	return nil
}

// ProcessFile 对本地文件执行完整的入库流程。失败时文档被标记为 failed，
// 返回的 ProcessResult 中 Success 为 false。
func (p *Processor) ProcessFile(ctx context.Context, filePath string, documentID, agentID uint, originalName string, opts ProcessOptions) (*ProcessResult, error) {
	res, err := p.processFile(ctx, filePath, documentID, agentID, originalName, opts)
	if err != nil {
		log.Errorf("[Processor] 文档 %d 处理失败: %v", documentID, err)
		p.markFailed(ctx, documentID, err)
		res.Success = false
		res.Error = err.Error()
		return res, err
	}
	return res, nil
}

func (p *Processor) processFile(ctx context.Context, filePath string, documentID, agentID uint, originalName string, opts ProcessOptions) (*ProcessResult, error) {
	res := &ProcessResult{}
	if originalName == "" {
		originalName = filepath.Base(filePath)
	}

	// 1. 文本提取
	log.Infof("[Processor] 步骤2: 提取文本内容, FileName: %s", originalName)
	extraction, err := p.extract(ctx, filePath, originalName)
	if err != nil {
		return res, newIngestionError(StageExtraction, documentID, fmt.Errorf("%w: %w", ErrExtraction, err))
	}
	if strings.TrimSpace(extraction.Text) == "" {
		return res, newIngestionError(StageExtraction, documentID, ErrEmptyText)
	}
	res.Text = extraction.Text
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符, 页数: %d", utf8.RuneCountInString(extraction.Text), extraction.Metadata.TotalPages)

	// 2. 结构分析
	analysis := p.analyzer.Analyze(extraction.Text, extraction.Metadata)
	res.Analysis = &analysis
	log.Infow("[Processor] 步骤3: 结构分析完成",
		"documentId", documentID,
		"visionScore", analysis.VisionScore,
		"recommendation", analysis.RecommendationLevel,
		"diagramCount", analysis.DiagramCount,
	)

	// 3. 分块
	body, err := p.chunker.Chunk(ctx, extraction)
	if err != nil {
		return res, newIngestionError(StageChunking, documentID, fmt.Errorf("%w: %w", ErrChunking, err))
	}
	if len(body) == 0 {
		return res, newIngestionError(StageChunking, documentID, ErrNoChunks)
	}
	log.Infof("[Processor] 步骤4: 文本分块完成, 共生成 %d 个分块", len(body))

	// 4. 视觉分析（可选）
	if opts.RunVision && analysis.RecommendVision {
		body = append(body, p.describeImages(ctx, filePath, originalName, documentID, analysis, len(body))...)
	}

	// 5. 摘要与合成分块
	summary := p.summarizer.Summarize(extraction.Text)
	drafts := AugmentChunks(body, summary.Text, summary.KeyPoints, originalName)

	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return res, newIngestionError(StageStore, documentID, fmt.Errorf("序列化结构分析失败: %w", err))
	}

	// 6. 向量化并写入
	count, err := p.writer.Write(ctx, documentID, agentID, drafts, opts.ExpiresAt)
	if err != nil {
		return res, err
	}
	res.ChunkCount = count

	if err := p.markReady(ctx, documentID, summary.Text, count, analysisJSON); err != nil {
		// 文档未能标记为 ready 时撤回刚写入的分块
		if derr := p.writer.Discard(ctx, documentID); derr != nil {
			log.Errorf("[Processor] 撤回文档 %d 的分块失败: %v", documentID, derr)
		}
		return res, newIngestionError(StageStore, documentID, err)
	}

	res.Success = true
	log.Infof("[Processor] 文档处理成功完成, DocumentID: %d, 分块数: %d", documentID, count)
	return res, nil
}

func (p *Processor) extract(ctx context.Context, filePath, fileName string) (*model.ExtractionResult, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.extractor.Extract(ctx, f, fileName)
}

// describeImages 导出内嵌图片并逐张生成描述，作为额外分块追加在正文之后。
// 任何失败都只记录日志，不影响主流程。
func (p *Processor) describeImages(ctx context.Context, filePath, fileName string, documentID uint, analysis model.StructureAnalysis, nextIndex int) []model.ChunkDraft {
	if p.unpacker == nil || p.vision == nil {
		log.Warnf("[Processor] 推荐视觉分析但未配置视觉服务, DocumentID: %d", documentID)
		return nil
	}
	dir, err := os.MkdirTemp(p.tempDir(), "vision-*")
	if err != nil {
		log.Warnf("[Processor] 创建图片临时目录失败: %v", err)
		return nil
	}
	defer os.RemoveAll(dir)

	f, err := os.Open(filePath)
	if err != nil {
		log.Warnf("[Processor] 打开文件失败: %v", err)
		return nil
	}
	images, err := p.unpacker.Unpack(ctx, f, fileName, dir)
	f.Close()
	if err != nil {
		log.Warnf("[Processor] 导出内嵌图片失败, DocumentID: %d: %v", documentID, err)
		return nil
	}
	if limit := p.cfg.MaxVisionImages; limit > 0 && len(images) > limit {
		images = images[:limit]
	}

	var drafts []model.ChunkDraft
	for _, img := range images {
		desc, err := p.vision.AnalyzeImage(ctx, img.Path, img.Page, analysis.DominantCategory)
		if err != nil {
			log.Warnf("[Processor] 图片 %s 视觉分析失败: %v", filepath.Base(img.Path), err)
			continue
		}
		if desc == "" {
			continue
		}
		drafts = append(drafts, model.ChunkDraft{
			Index:    nextIndex + len(drafts),
			Content:  desc,
			Keywords: ExtractKeywords(desc, maxChunkKeywords),
			Metadata: map[string]any{
				"source": "vision",
				"image":  filepath.Base(img.Path),
				"page":   img.Page,
			},
		})
	}
	log.Infof("[Processor] 视觉分析完成, DocumentID: %d, 图片 %d 张, 生成分块 %d 个", documentID, len(images), len(drafts))
	return drafts
}

func (p *Processor) markReady(ctx context.Context, documentID uint, summary string, count int, analysisJSON []byte) error {
	if p.documents == nil {
		return nil
	}
	doc, err := p.documents.FindByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("查询文档失败: %w", err)
	}
	doc.Status = model.DocumentStatusReady
	doc.Summary = summary
	doc.ChunkCount = count
	doc.StructureAnalysis = datatypes.JSON(analysisJSON)
	doc.ErrorMessage = ""
	if err := p.documents.Update(ctx, doc); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	return nil
}

func (p *Processor) markFailed(ctx context.Context, documentID uint, cause error) {
	if p.documents == nil {
		return
	}
	doc, err := p.documents.FindByID(ctx, documentID)
	if err != nil {
		log.Warnf("[Processor] 标记文档 %d 失败状态时查询出错: %v", documentID, err)
		return
	}
	doc.Status = model.DocumentStatusFailed
	doc.ErrorMessage = cause.Error()
	if err := p.documents.Update(ctx, doc); err != nil {
		log.Warnf("[Processor] 更新文档 %d 为失败状态出错: %v", documentID, err)
	}
}

func (p *Processor) tempDir() string {
	if p.cfg.TempDir == "" {
		return os.TempDir()
	}
	if err := os.MkdirAll(p.cfg.TempDir, 0o755); err != nil {
		log.Warnf("[Processor] 创建临时目录 %s 失败, 使用系统临时目录: %v", p.cfg.TempDir, err)
		return os.TempDir()
	}
	return p.cfg.TempDir
}
