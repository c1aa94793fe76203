package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"canon-rag-go/internal/model"
	"canon-rag-go/pkg/tasks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Document{}, &model.DocumentChunk{}, &model.CanonSettings{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[text], nil
}

type fakeObjects struct {
	puts     map[string]string
	removed  []string
	putErr   error
	rmErr    error
	presigns int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{puts: map[string]string{}}
}

func (f *fakeObjects) Put(_ context.Context, objectName string, r io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.puts[objectName] = string(b)
	return nil
}

func (f *fakeObjects) Remove(_ context.Context, objectName string) error {
	f.removed = append(f.removed, objectName)
	return f.rmErr
}

func (f *fakeObjects) PresignedURL(_ context.Context, objectName, _ string, _ time.Duration) (string, error) {
	f.presigns++
	return "http://minio.local/" + objectName, nil
}

type fakePublisher struct {
	tasks []tasks.DocumentIngestionTask
	err   error
}

func (f *fakePublisher) PublishIngestionTask(_ context.Context, task tasks.DocumentIngestionTask) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

type fakeMirror struct {
	deleted []uint
	err     error
}

func (f *fakeMirror) DeleteByDocument(_ context.Context, documentID uint) error {
	f.deleted = append(f.deleted, documentID)
	return f.err
}

var errBoom = errors.New("boom")
