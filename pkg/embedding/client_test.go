package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"canon-rag-go/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEmbedding(t *testing.T) {
	var got embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{APIKey: "secret", BaseURL: srv.URL + "/v1/", Model: "text-embedding-v4", Dimensions: 3})
	vec, err := c.CreateEmbedding(context.Background(), "메트로 노선")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "text-embedding-v4", got.Model)
	assert.Equal(t, []string{"메트로 노선"}, got.Input)
}

func TestCreateEmbeddingErrors(t *testing.T) {
	status := http.StatusInternalServerError
	body := `{}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()
	c := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", Dimensions: 4})

	_, err := c.CreateEmbedding(context.Background(), "q")
	assert.ErrorContains(t, err, "non-200")

	status, body = http.StatusOK, `{"data":[]}`
	_, err = c.CreateEmbedding(context.Background(), "q")
	assert.ErrorContains(t, err, "empty embedding")

	body = `{"data":[{"embedding":[1,2]}]}`
	_, err = c.CreateEmbedding(context.Background(), "q")
	assert.ErrorContains(t, err, "dimension mismatch")

	_, err = c.CreateEmbedding(context.Background(), "   ")
	assert.Error(t, err)
}

type countingClient struct {
	calls int
	err   error
}

func (c *countingClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{1, 2}, nil
}

func TestCachedClientFallsBackWhenRedisUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	next := &countingClient{}
	c := NewCachedClient(next, rdb, "m", time.Minute)

	vec, err := c.CreateEmbedding(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, 1, next.calls)

	next.err = errors.New("boom")
	_, err = c.CreateEmbedding(context.Background(), "query")
	assert.EqualError(t, err, "boom")
}

func TestCachedClientKeyDependsOnModel(t *testing.T) {
	a := NewCachedClient(nil, nil, "model-a", 0)
	b := NewCachedClient(nil, nil, "model-b", 0)
	assert.NotEqual(t, a.key("q"), b.key("q"))
	assert.Equal(t, a.key("q"), a.key("q"))
	assert.Equal(t, 30*time.Minute, a.ttl)
}
