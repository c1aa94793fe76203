package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"canon-rag-go/internal/config"
	"canon-rag-go/internal/model"
	"canon-rag-go/internal/pipeline"
	"canon-rag-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDocuments struct {
	uploaded service.UploadRequest
	body     string
	deleted  []uint
	err      error
}

func (s *stubDocuments) Upload(_ context.Context, req service.UploadRequest) (*model.Document, error) {
	s.uploaded = req
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(req.Reader)
	s.body = buf.String()
	return &model.Document{ID: 11, AgentID: req.AgentID, FileName: req.FileName, Status: model.DocumentStatusProcessing}, s.err
}

func (s *stubDocuments) List(context.Context, uint) ([]model.DocumentDTO, error) {
	return []model.DocumentDTO{{ID: 11, FileName: "a.pdf"}}, nil
}

func (s *stubDocuments) Get(_ context.Context, id uint) (*model.DocumentDTO, error) {
	if id != 11 {
		return nil, service.ErrDocumentNotFound
	}
	return &model.DocumentDTO{ID: 11, FileName: "a.pdf"}, nil
}

func (s *stubDocuments) Delete(_ context.Context, id uint) error {
	s.deleted = append(s.deleted, id)
	return s.err
}

func (s *stubDocuments) Reprocess(context.Context, uint, bool) error { return nil }

func (s *stubDocuments) DownloadURL(context.Context, uint) (*service.DownloadInfoDTO, error) {
	return &service.DownloadInfoDTO{FileName: "a.pdf", DownloadURL: "http://x"}, nil
}

type stubSearch struct {
	agentID uint
	query   string
	limit   int
}

func (s *stubSearch) SearchDocumentChunks(_ context.Context, agentID uint, query string, limit int) ([]model.RankedChunk, error) {
	s.agentID, s.query, s.limit = agentID, query, limit
	return []model.RankedChunk{{DocumentID: 5, FileName: "map.pdf", Content: "Line 2", Score: 5.4}}, nil
}

type stubCanon struct {
	sources []any
}

func (s *stubCanon) ResolveScope(context.Context, uint) (model.CanonScope, error) {
	return model.CanonScope{}, nil
}

func (s *stubCanon) GetSources(context.Context, uint) ([]uint, error) { return []uint{5}, nil }

func (s *stubCanon) UpdateSources(_ context.Context, _ uint, sources []any) ([]uint, error) {
	s.sources = sources
	return []uint{5, 7}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestRouter() (*gin.Engine, *stubDocuments, *stubSearch, *stubCanon) {
	gin.SetMode(gin.TestMode)
	docs, search, canon := &stubDocuments{}, &stubSearch{}, &stubCanon{}
	r := NewRouter(Handlers{
		Documents: NewDocumentHandler(docs),
		Search:    NewSearchHandler(search),
		Canon:     NewCanonHandler(canon),
		Analysis:  NewAnalysisHandler(pipeline.NewStructureAnalyzer(config.AnalysisConfig{})),
	})
	return r, docs, search, canon
}

func do(t *testing.T, r http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestSearchRoute(t *testing.T) {
	r, _, search, _ := newTestRouter()

	w, env := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/agents/3/search?query=subway+map&limit=2", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", env.Message)
	assert.Equal(t, uint(3), search.agentID)
	assert.Equal(t, "subway map", search.query)
	assert.Equal(t, 2, search.limit)

	var chunks []model.RankedChunk
	require.NoError(t, json.Unmarshal(env.Data, &chunks))
	require.Len(t, chunks, 1)
	assert.Equal(t, "map.pdf", chunks[0].FileName)

	w, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/agents/3/search", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/agents/abc/search?query=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRoute(t *testing.T) {
	r, docs, _, _ := newTestRouter()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", "subway.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("%PDF-1.7"))
	require.NoError(t, mw.WriteField("ttl_hours", "24"))
	require.NoError(t, mw.WriteField("run_vision", "true"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/3/documents", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, env := do(t, r, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, uint(3), docs.uploaded.AgentID)
	assert.Equal(t, "subway.pdf", docs.uploaded.FileName)
	assert.Equal(t, "24h0m0s", docs.uploaded.TTL.String())
	assert.True(t, docs.uploaded.RunVision)
	assert.Equal(t, "%PDF-1.7", docs.body)

	var dto model.DocumentDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, uint(11), dto.ID)
}

func TestDocumentRoutes(t *testing.T) {
	r, docs, _, _ := newTestRouter()

	w, _ := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/documents/11", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/documents/12", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusNotFound, env.Code)

	w, _ = do(t, r, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/11", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uint{11}, docs.deleted)

	w, _ = do(t, r, httptest.NewRequest(http.MethodPost, "/api/v1/documents/11/reprocess", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	w, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/agents/3/documents", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCanonRoutes(t *testing.T) {
	r, _, _, canon := newTestRouter()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/agents/3/canon", strings.NewReader(`{"sources":[5,"7","x"]}`))
	req.Header.Set("Content-Type", "application/json")
	w, env := do(t, r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{float64(5), "7", "x"}, canon.sources)
	assert.JSONEq(t, `{"agentId":3,"sources":[5,7]}`, string(env.Data))

	w, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/agents/3/canon", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"agentId":3,"sources":[5]}`, string(env.Data))
}

func TestAnalyzeStructureRoute(t *testing.T) {
	r, _, _, _ := newTestRouter()

	payload := `{"text":"circuit circuit circuit","metadata":{"total_pages":1,"ocr_used":false,"ocr_pages":0}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/structure", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w, env := do(t, r, req)
	require.Equal(t, http.StatusOK, w.Code)

	var a model.StructureAnalysis
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.InDelta(t, 10.0, a.VisionScore, 1e-9)
	assert.Equal(t, model.RecommendationHighlyRecommended, a.RecommendationLevel)
	assert.True(t, a.RecommendVision)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/analysis/structure", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w, _ = do(t, r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
