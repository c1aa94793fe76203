// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"canon-rag-go/internal/config"
	"canon-rag-go/internal/model"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
	http      *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		serverURL: strings.TrimRight(cfg.ServerURL, "/"),
		http:      &http.Client{Timeout: timeout},
	}
}

// Extract 调用 /rmeta/text 提取文本与元数据，并在文本上识别公式和 markdown 表格。
// 内嵌资源（图片等）也会出现在 rmeta 的结果里，只统计不返回路径；需要落地图片时用 Unpack。
func (c *Client) Extract(ctx context.Context, r io.Reader, fileName string) (*model.ExtractionResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/rmeta/text", r)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	var parts []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parts); err != nil {
		return nil, fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	if len(parts) == 0 {
		return &model.ExtractionResult{}, nil
	}
	return buildResult(parts), nil
}

// buildResult 第一个元素是容器文档本身，其余为内嵌资源。
func buildResult(parts []map[string]any) *model.ExtractionResult {
	main := parts[0]
	text := strings.TrimSpace(stringField(main, "X-TIKA:content"))

	meta := model.ExtractionMetadata{Extra: map[string]string{}}
	meta.TotalPages = intField(main, "xmpTPg:NPages")
	if meta.TotalPages == 0 {
		meta.TotalPages = intField(main, "meta:page-count")
	}
	for _, key := range []string{"Content-Type", "dc:title", "dc:creator", "dcterms:created"} {
		if v := stringField(main, key); v != "" {
			meta.Extra[key] = v
		}
	}

	res := &model.ExtractionResult{Text: text}
	for i, p := range parts {
		if strings.Contains(stringField(p, "X-TIKA:Parsed-By"), "TesseractOCRParser") {
			meta.OCRUsed = true
			meta.OCRPages++
		}
		if i == 0 {
			continue
		}
		if strings.HasPrefix(stringField(p, "Content-Type"), "image/") {
			res.Images = append(res.Images, model.ExtractedImage{Path: stringField(p, "X-TIKA:embedded_resource_path")})
		}
	}
	res.Metadata = meta
	res.Formulas = DetectFormulas(text)
	res.Tables = DetectTables(text)
	return res
}

// Tika 对多值字段返回数组，这里取第一个值。
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case []any:
		var out []string
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return strings.Join(out, ",")
	}
	return ""
}

func intField(m map[string]any, key string) int {
	s := stringField(m, key)
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

var formulaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\$[^$]+\$\$`),
	regexp.MustCompile(`\\\[[\s\S]+?\\\]`),
	regexp.MustCompile(`(?:^|[^$\\])\$([^$\n]{1,200})\$`),
}

// DetectFormulas 识别 LaTeX 公式：$$..$$、\[..\] 和行内 $..$。
func DetectFormulas(text string) []string {
	var out []string
	for i, p := range formulaPatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			f := m[0]
			if i == 2 {
				f = "$" + m[1] + "$"
			}
			out = append(out, strings.TrimSpace(f))
		}
		// 去掉已匹配的块公式，避免被行内规则重复识别
		text = p.ReplaceAllString(text, " ")
	}
	return out
}

var tableSeparator = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)

// DetectTables 识别 markdown 表格：表头行、分隔行和若干数据行。
func DetectTables(text string) []model.ExtractedTable {
	lines := strings.Split(text, "\n")
	var tables []model.ExtractedTable
	for i := 1; i < len(lines); i++ {
		if !tableSeparator.MatchString(lines[i]) || !strings.Contains(lines[i-1], "|") {
			continue
		}
		t := model.ExtractedTable{
			ID:      fmt.Sprintf("table_%d", len(tables)+1),
			Format:  "markdown",
			Headers: splitRow(lines[i-1]),
		}
		j := i + 1
		for ; j < len(lines) && strings.Contains(lines[j], "|"); j++ {
			t.Rows = append(t.Rows, splitRow(lines[j]))
		}
		tables = append(tables, t)
		i = j
	}
	return tables
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// Unpack 调用 /unpack/all 导出内嵌资源，把其中的图片写到 destDir。
func (c *Client) Unpack(ctx context.Context, r io.Reader, fileName, destDir string) ([]model.ExtractedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/unpack/all", r)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/zip")
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Tika 返回错误 [%d]", resp.StatusCode)
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return nil, fmt.Errorf("解析 unpack 压缩包失败: %w", err)
	}

	var images []model.ExtractedImage
	for _, f := range zr.File {
		name := filepath.Base(f.Name)
		if !isImage(name) {
			continue
		}
		dest := filepath.Join(destDir, fmt.Sprintf("%03d_%s", len(images)+1, name))
		if err := writeZipEntry(f, dest); err != nil {
			return images, err
		}
		images = append(images, model.ExtractedImage{Path: dest, Page: pageFromName(name)})
	}
	return images, nil
}

func writeZipEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

var pageNumber = regexp.MustCompile(`(?i)(?:page|p)[-_]?(\d+)`)

// pageFromName 从 Tika 导出的文件名中解析页码，无法解析时为 0。
func pageFromName(name string) int {
	if m := pageNumber.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
