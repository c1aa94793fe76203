// Package es 提供了与 Elasticsearch 交互的客户端功能：分块镜像索引与候选分块查询。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"canon-rag-go/internal/config"
	"canon-rag-go/internal/model"
	"canon-rag-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// NewClient 根据配置创建 Elasticsearch 客户端，多个地址用逗号分隔。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addresses []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// ChunkIndex 是 document_chunks 在 Elasticsearch 中的镜像。
type ChunkIndex struct {
	client *elasticsearch.Client
	index  string
	dims   int
}

// NewChunkIndex 创建分块镜像索引的访问对象。
func NewChunkIndex(client *elasticsearch.Client, indexName string, dims int) *ChunkIndex {
	return &ChunkIndex{client: client, index: indexName, dims: dims}
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它。
func (i *ChunkIndex) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", i.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_key": { "type": "keyword" },
				"document_id": { "type": "long" },
				"agent_id": { "type": "long" },
				"chunk_index": { "type": "integer" },
				"content": { "type": "text" },
				"keywords": { "type": "keyword" },
				"metadata": { "type": "object", "enabled": false },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" },
				"expires_at": { "type": "date" },
				"document_expires_at": { "type": "date" }
			}
		}
	}`, i.dims)

	res, err = i.client.Indices.Create(
		i.index,
		i.client.Indices.Create.WithContext(ctx),
		i.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", i.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", i.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("索引 '%s' 创建成功", i.index)
	return nil
}

// ReplaceDocumentChunks 删除文档在索引中的旧分块，再批量写入新分块。
func (i *ChunkIndex) ReplaceDocumentChunks(ctx context.Context, documentID uint, docs []model.EsChunkDocument) error {
	if err := i.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, d := range docs {
		meta := map[string]any{"index": map[string]any{"_index": i.index, "_id": d.ChunkKey}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(d); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Body:    &body,
		Refresh: "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("批量索引分块到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to bulk index chunks")
	}

	var bulk struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if bulk.Errors {
		return errors.New("部分分块索引失败")
	}
	log.Infof("[ChunkIndex] 文档 %d 镜像 %d 个分块", documentID, len(docs))
	return nil
}

// DeleteByDocument 删除文档在索引中的全部分块。
func (i *ChunkIndex) DeleteByDocument(ctx context.Context, documentID uint) error {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"document_id": documentID},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return err
	}
	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{i.index},
		Body:    &buf,
		Refresh: &refresh,
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		log.Errorf("从 Elasticsearch 删除文档 %d 的分块出错: %s", documentID, res.String())
		return errors.New("failed to delete chunks")
	}
	return nil
}

// SearchCandidates 只做过滤、不做打分：agent、可选的文档白名单以及分块和文档两级过期时间。
// documentIDs 为 nil 表示不限制文档。按 pageSize 用 search_after 翻页，返回全部命中。
func (i *ChunkIndex) SearchCandidates(ctx context.Context, agentID uint, documentIDs []uint, now time.Time, pageSize int) ([]model.EsChunkDocument, error) {
	if documentIDs != nil && len(documentIDs) == 0 {
		return []model.EsChunkDocument{}, nil
	}
	if pageSize <= 0 {
		pageSize = 500
	}

	filters := []map[string]any{
		{"term": map[string]any{"agent_id": agentID}},
		notExpired("expires_at", now),
		notExpired("document_expires_at", now),
	}
	if documentIDs != nil {
		filters = append(filters, map[string]any{"terms": map[string]any{"document_id": documentIDs}})
	}

	out := []model.EsChunkDocument{}
	var after []any
	for {
		hits, err := i.searchPage(ctx, filters, pageSize, after)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			out = append(out, h.Source)
		}
		if len(hits) < pageSize {
			return out, nil
		}
		after = hits[len(hits)-1].Sort
	}
}

type candidateHit struct {
	Source model.EsChunkDocument `json:"_source"`
	Sort   []any                 `json:"sort"`
}

func (i *ChunkIndex) searchPage(ctx context.Context, filters []map[string]any, size int, after []any) ([]candidateHit, error) {
	query := map[string]any{
		"size": size,
		"sort": []map[string]any{
			{"document_id": "asc"},
			{"chunk_index": "asc"},
			{"chunk_key": "asc"},
		},
		"query": map[string]any{
			"bool": map[string]any{"filter": filters},
		},
	}
	if after != nil {
		query["search_after"] = after
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}
	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.index),
		i.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[ChunkIndex] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []candidateHit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	return esResponse.Hits.Hits, nil
}

// notExpired 匹配字段缺失或晚于 now 的文档。
func notExpired(field string, now time.Time) map[string]any {
	return map[string]any{
		"bool": map[string]any{
			"should": []map[string]any{
				{"bool": map[string]any{"must_not": map[string]any{"exists": map[string]any{"field": field}}}},
				{"range": map[string]any{field: map[string]any{"gt": now.UTC().Format(time.RFC3339)}}},
			},
			"minimum_should_match": 1,
		},
	}
}
