package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"canon-rag-go/internal/model"
	"canon-rag-go/internal/repository"
	"canon-rag-go/pkg/log"
	"canon-rag-go/pkg/storage"
	"canon-rag-go/pkg/tasks"

	"gorm.io/gorm"
)

// ObjectStorage 是文档原始文件的存储。
type ObjectStorage interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, objectName string) error
	PresignedURL(ctx context.Context, objectName, fileName string, expiry time.Duration) (string, error)
}

// TaskPublisher 投递入库任务。
type TaskPublisher interface {
	PublishIngestionTask(ctx context.Context, task tasks.DocumentIngestionTask) error
}

// MirrorCleaner 删除 Elasticsearch 镜像中的分块。
type MirrorCleaner interface {
	DeleteByDocument(ctx context.Context, documentID uint) error
}

// UploadRequest 描述一次上传。TTL 为 0 表示永不过期。
type UploadRequest struct {
	AgentID     uint
	FileName    string
	Size        int64
	Reader      io.Reader
	Description string
	TTL         time.Duration
	RunVision   bool
}

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, req UploadRequest) (*model.Document, error)
	List(ctx context.Context, agentID uint) ([]model.DocumentDTO, error)
	Get(ctx context.Context, id uint) (*model.DocumentDTO, error)
	Delete(ctx context.Context, id uint) error
	Reprocess(ctx context.Context, id uint, runVision bool) error
	DownloadURL(ctx context.Context, id uint) (*DownloadInfoDTO, error)
}

type documentService struct {
	docs      repository.DocumentRepository
	objects   ObjectStorage
	publisher TaskPublisher
	mirror    MirrorCleaner
	now       func() time.Time
}

// NewDocumentService 创建一个新的 DocumentService 实例。mirror 可以为 nil。
func NewDocumentService(docs repository.DocumentRepository, objects ObjectStorage, publisher TaskPublisher, mirror MirrorCleaner) DocumentService {
	return &documentService{
		docs:      docs,
		objects:   objects,
		publisher: publisher,
		mirror:    mirror,
		now:       time.Now,
	}
}

// Upload 创建文档记录、保存原始文件并投递入库任务。
func (s *documentService) Upload(ctx context.Context, req UploadRequest) (*model.Document, error) {
	fileName := filepath.Base(strings.TrimSpace(req.FileName))
	if req.AgentID == 0 || fileName == "" || fileName == "." || req.Reader == nil {
		return nil, fmt.Errorf("%w: agentId 和文件不能为空", ErrInvalidInput)
	}
	if req.TTL < 0 {
		return nil, fmt.Errorf("%w: ttl 不能为负数", ErrInvalidInput)
	}

	doc := &model.Document{
		AgentID:     req.AgentID,
		FileName:    fileName,
		TotalSize:   req.Size,
		Status:      model.DocumentStatusProcessing,
		Description: req.Description,
	}
	if req.TTL > 0 {
		exp := s.now().Add(req.TTL)
		doc.ExpiresAt = &exp
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}

	objectName := storage.DocumentObjectName(doc.AgentID, doc.ID, fileName)
	contentType := mime.TypeByExtension(filepath.Ext(fileName))
	if err := s.objects.Put(ctx, objectName, req.Reader, req.Size, contentType); err != nil {
		s.fail(ctx, doc, err)
		return nil, fmt.Errorf("保存原始文件失败: %w", err)
	}
	doc.ObjectName = objectName
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, err
	}

	if err := s.publish(ctx, doc, req.RunVision); err != nil {
		s.fail(ctx, doc, err)
		return nil, err
	}
	log.Infof("[DocumentService] 文档 %d 上传完成, agent: %d, 文件: %s", doc.ID, doc.AgentID, fileName)
	return doc, nil
}

func (s *documentService) publish(ctx context.Context, doc *model.Document, runVision bool) error {
	task := tasks.DocumentIngestionTask{
		DocumentID: doc.ID,
		AgentID:    doc.AgentID,
		ObjectName: doc.ObjectName,
		FileName:   doc.FileName,
		RunVision:  runVision,
	}
	if err := s.publisher.PublishIngestionTask(ctx, task); err != nil {
		return fmt.Errorf("投递入库任务失败: %w", err)
	}
	return nil
}

func (s *documentService) fail(ctx context.Context, doc *model.Document, cause error) {
	doc.Status = model.DocumentStatusFailed
	doc.ErrorMessage = cause.Error()
	if err := s.docs.Update(ctx, doc); err != nil {
		log.Warnf("[DocumentService] 更新文档 %d 为失败状态出错: %v", doc.ID, err)
	}
}

func (s *documentService) List(ctx context.Context, agentID uint) ([]model.DocumentDTO, error) {
	docs, err := s.docs.FindByAgentID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	out := make([]model.DocumentDTO, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].ToDTO())
	}
	return out, nil
}

func (s *documentService) Get(ctx context.Context, id uint) (*model.DocumentDTO, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := doc.ToDTO()
	return &dto, nil
}

// Delete 删除文档行和分块，再清理镜像与原始文件。后两步的错误合并返回。
func (s *documentService) Delete(ctx context.Context, id uint) error {
	doc, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("删除文档记录失败: %w", err)
	}

	var errs []error
	if s.mirror != nil {
		if err := s.mirror.DeleteByDocument(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("删除分块镜像失败: %w", err))
		}
	}
	if doc.ObjectName != "" {
		if err := s.objects.Remove(ctx, doc.ObjectName); err != nil {
			errs = append(errs, fmt.Errorf("删除原始文件失败: %w", err))
		}
	}
	log.Infof("[DocumentService] 文档 %d 已删除", id)
	return errors.Join(errs...)
}

// Reprocess 重新投递入库任务，分块会被整体替换。
func (s *documentService) Reprocess(ctx context.Context, id uint, runVision bool) error {
	doc, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if doc.ObjectName == "" {
		return fmt.Errorf("%w: 文档 %d 没有原始文件", ErrInvalidInput, id)
	}
	doc.Status = model.DocumentStatusProcessing
	doc.ErrorMessage = ""
	if err := s.docs.Update(ctx, doc); err != nil {
		return err
	}
	return s.publish(ctx, doc, runVision)
}

func (s *documentService) DownloadURL(ctx context.Context, id uint) (*DownloadInfoDTO, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	url, err := s.objects.PresignedURL(ctx, doc.ObjectName, doc.FileName, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("生成下载链接失败: %w", err)
	}
	return &DownloadInfoDTO{FileName: doc.FileName, DownloadURL: url, FileSize: doc.TotalSize}, nil
}

func (s *documentService) find(ctx context.Context, id uint) (*model.Document, error) {
	doc, err := s.docs.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}
