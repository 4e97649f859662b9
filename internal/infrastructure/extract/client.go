// Package extract 提供内容提取服务的 HTTP 客户端
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"deckgen-api/internal/config"
)

var tracer = otel.Tracer("extract")

// Client 内容提取服务客户端
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient 创建内容提取服务客户端
func NewClient(cfg *config.Config) *Client {
	return &Client{
		endpoint: cfg.Collaborators.Extract.Endpoint,
		http: &http.Client{
			Timeout: cfg.Collaborators.Extract.Timeout,
		},
	}
}

// extractResponse 提取结果报文
type extractResponse struct {
	Content string `json:"content"`
	Title   string `json:"title"`
}

// ExtractURL 抓取网页并提取正文与标题
func (c *Client) ExtractURL(ctx context.Context, rawURL string) (string, string, error) {
	ctx, span := tracer.Start(ctx, "extract.ExtractURL",
		trace.WithAttributes(attribute.String("extract.url", rawURL)))
	defer span.End()

	body, err := json.Marshal(map[string]string{"url": rawURL})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/extract/url", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, span)
}

// ExtractFile 从上传的文档中提取文本与标题
func (c *Client) ExtractFile(ctx context.Context, filename string, r io.Reader, size int64) (string, string, error) {
	ctx, span := tracer.Start(ctx, "extract.ExtractFile",
		trace.WithAttributes(
			attribute.String("extract.filename", filename),
			attribute.Int64("extract.size", size),
		))
	defer span.End()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", "", fmt.Errorf("failed to read upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/extract/file", &buf)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req, span)
}

// do 发起请求并解析提取结果
func (c *Client) do(req *http.Request, span trace.Span) (string, string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", "", fmt.Errorf("extract service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("extract service returned %d: %s", resp.StatusCode, string(body))
		span.RecordError(err)
		return "", "", err
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("failed to decode extract response: %w", err)
	}
	span.SetAttributes(attribute.Int("extract.chars", len(out.Content)))
	return out.Content, out.Title, nil
}
