// Package vision provides a client for describing document images with an
// OpenAI-compatible multimodal chat model.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"canon-rag-go/internal/config"
	"canon-rag-go/pkg/log"
)

// Client describes a single image.
type Client interface {
	AnalyzeImage(ctx context.Context, imagePath string, pageNumber int, kindHint string) (string, error)
}

type openAICompatibleClient struct {
	cfg    config.VisionConfig
	client *http.Client
}

// NewClient creates a vision client from config.
func NewClient(cfg config.VisionConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &openAICompatibleClient{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Stream    bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// 不同内容类别的提示侧重点。
var kindPrompts = map[string]string{
	"maps":     "Describe every route, line, station name and transfer point shown.",
	"math":     "Transcribe every formula in LaTeX and explain each variable.",
	"circuits": "List every component with its value and describe how they are connected.",
	"tables":   "Transcribe the table as markdown, keeping every row and column.",
	"diagrams": "Describe the axes, series, labels and the trend or flow shown.",
}

// BuildPrompt 生成单张图片的描述提示。
func BuildPrompt(pageNumber int, kindHint string) string {
	var b strings.Builder
	b.WriteString("You are reading an image extracted from a document")
	if pageNumber > 0 {
		fmt.Fprintf(&b, " (page %d)", pageNumber)
	}
	b.WriteString(". Describe its content as plain text so it can be searched later. ")
	if p, ok := kindPrompts[kindHint]; ok {
		b.WriteString(p)
	} else {
		b.WriteString("Include all visible text, labels and numbers.")
	}
	return b.String()
}

// AnalyzeImage 以 base64 data URL 的形式发送图片，返回模型的文字描述。
func (c *openAICompatibleClient) AnalyzeImage(ctx context.Context, imagePath string, pageNumber int, kindHint string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(imagePath)))
	if mimeType == "" {
		mimeType = "image/png"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: BuildPrompt(pageNumber, kindHint)},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		MaxTokens: c.cfg.MaxTokens,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal vision request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	log.Infof("[VisionClient] 开始分析图片 %s, page: %d, hint: %s", filepath.Base(imagePath), pageNumber, kindHint)
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call vision api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("vision api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode vision response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("vision api returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
