package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"canon-rag-go/internal/model"
	"canon-rag-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type documentFixture struct {
	docs      repository.DocumentRepository
	chunks    repository.ChunkRepository
	objects   *fakeObjects
	publisher *fakePublisher
	mirror    *fakeMirror
	svc       *documentService
}

func newDocumentFixture(t *testing.T) *documentFixture {
	db := newTestDB(t)
	f := &documentFixture{
		docs:      repository.NewDocumentRepository(db),
		chunks:    repository.NewChunkRepository(db),
		objects:   newFakeObjects(),
		publisher: &fakePublisher{},
		mirror:    &fakeMirror{},
	}
	f.svc = NewDocumentService(f.docs, f.objects, f.publisher, f.mirror).(*documentService)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func TestDocumentServiceUpload(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t)

	doc, err := f.svc.Upload(ctx, UploadRequest{
		AgentID:   4,
		FileName:  "../notes/subway.pdf",
		Size:      5,
		Reader:    strings.NewReader("%PDF-"),
		TTL:       48 * time.Hour,
		RunVision: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "subway.pdf", doc.FileName)
	assert.Equal(t, model.DocumentStatusProcessing, doc.Status)
	require.NotNil(t, doc.ExpiresAt)
	assert.True(t, doc.ExpiresAt.Equal(testNow.Add(48*time.Hour)))

	assert.Equal(t, "%PDF-", f.objects.puts[doc.ObjectName])
	require.Len(t, f.publisher.tasks, 1)
	task := f.publisher.tasks[0]
	assert.Equal(t, doc.ID, task.DocumentID)
	assert.Equal(t, uint(4), task.AgentID)
	assert.Equal(t, doc.ObjectName, task.ObjectName)
	assert.True(t, task.RunVision)

	stored, err := f.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ObjectName, stored.ObjectName)
}

func TestDocumentServiceUploadValidation(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t)

	_, err := f.svc.Upload(ctx, UploadRequest{AgentID: 0, FileName: "a.pdf", Reader: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Upload(ctx, UploadRequest{AgentID: 1, FileName: "a.pdf", Reader: strings.NewReader("x"), TTL: -time.Hour})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDocumentServiceUploadPublishFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t)
	f.publisher.err = errBoom

	_, err := f.svc.Upload(ctx, UploadRequest{AgentID: 1, FileName: "a.pdf", Reader: strings.NewReader("x")})
	require.ErrorIs(t, err, errBoom)

	docs, err := f.docs.FindByAgentID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, model.DocumentStatusFailed, docs[0].Status)
	assert.Contains(t, docs[0].ErrorMessage, "boom")
}

func TestDocumentServiceDelete(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t)

	doc, err := f.svc.Upload(ctx, UploadRequest{AgentID: 1, FileName: "a.pdf", Reader: strings.NewReader("x")})
	require.NoError(t, err)
	require.NoError(t, f.chunks.ReplaceByDocumentID(ctx, doc.ID, []*model.DocumentChunk{
		{DocumentID: doc.ID, AgentID: 1, ChunkIndex: 0, Content: "body", Keywords: datatypes.JSON(`[]`), Metadata: datatypes.JSON(`{}`)},
	}, nil))

	f.mirror.err = errBoom
	err = f.svc.Delete(ctx, doc.ID)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []uint{doc.ID}, f.mirror.deleted)
	assert.Equal(t, []string{doc.ObjectName}, f.objects.removed)

	rows, err := f.chunks.FindByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	_, err = f.svc.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, doc.ID), ErrDocumentNotFound)
}

func TestDocumentServiceReprocessAndDownload(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t)

	doc, err := f.svc.Upload(ctx, UploadRequest{AgentID: 1, FileName: "a.pdf", Size: 1, Reader: strings.NewReader("x")})
	require.NoError(t, err)
	doc.Status = model.DocumentStatusFailed
	doc.ErrorMessage = "tika down"
	require.NoError(t, f.docs.Update(ctx, doc))

	require.NoError(t, f.svc.Reprocess(ctx, doc.ID, false))
	assert.Len(t, f.publisher.tasks, 2)
	got, err := f.svc.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusProcessing, got.Status)
	assert.Empty(t, got.ErrorMessage)

	info, err := f.svc.DownloadURL(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", info.FileName)
	assert.Equal(t, "http://minio.local/"+doc.ObjectName, info.DownloadURL)

	assert.ErrorIs(t, f.svc.Reprocess(ctx, 999, false), ErrDocumentNotFound)
}

func TestDocumentServiceList(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		_, err := f.svc.Upload(ctx, UploadRequest{AgentID: 9, FileName: name, Reader: strings.NewReader("x")})
		require.NoError(t, err)
	}
	list, err := f.svc.List(ctx, 9)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	list, err = f.svc.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
