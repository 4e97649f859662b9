// Package render 提供文稿渲染服务的 HTTP 客户端
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"deckgen-api/internal/application/port"
	"deckgen-api/internal/config"
	"deckgen-api/internal/domain/entity"
)

var tracer = otel.Tracer("render")

// Client 渲染服务客户端
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient 创建渲染服务客户端
func NewClient(cfg *config.Config) *Client {
	return &Client{
		endpoint: cfg.Collaborators.Render.Endpoint,
		http: &http.Client{
			Timeout: cfg.Collaborators.Render.Timeout,
		},
	}
}

// assemblePayload 装配请求报文
type assemblePayload struct {
	Title      string          `json:"title"`
	Outline    *entity.Outline `json:"outline"`
	TemplateID string          `json:"template_id"`
	Language   string          `json:"language,omitempty"`
}

// assembleResponse 装配响应报文
type assembleResponse struct {
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
	SizeBytes   int64  `json:"size_bytes"`
}

// ListTemplates 获取模板目录
func (c *Client) ListTemplates(ctx context.Context) ([]*entity.Template, error) {
	ctx, span := tracer.Start(ctx, "render.ListTemplates")
	defer span.End()

	var templates []*entity.Template
	if err := c.getJSON(ctx, c.endpoint+"/templates", &templates); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("render.template_count", len(templates)))
	return templates, nil
}

// GetTemplate 获取模板详情，模板不存在时返回 (nil, nil)
func (c *Client) GetTemplate(ctx context.Context, id string) (*entity.Template, error) {
	ctx, span := tracer.Start(ctx, "render.GetTemplate",
		trace.WithAttributes(attribute.String("render.template_id", id)))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/templates/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("render service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var tpl entity.Template
	if err := json.NewDecoder(resp.Body).Decode(&tpl); err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	return &tpl, nil
}

// Assemble 依据大纲与模板装配最终文稿
func (c *Client) Assemble(ctx context.Context, req *port.AssembleRequest) (*entity.Artifact, error) {
	ctx, span := tracer.Start(ctx, "render.Assemble",
		trace.WithAttributes(attribute.String("render.template_id", req.TemplateID)))
	defer span.End()

	body, err := json.Marshal(&assemblePayload{
		Title:      req.Title,
		Outline:    req.Outline,
		TemplateID: req.TemplateID,
		Language:   req.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assemble request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/assemble", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("render service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := responseError(resp)
		span.RecordError(err)
		return nil, err
	}

	var out assembleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode assemble response: %w", err)
	}
	return &entity.Artifact{
		Filename:    out.Filename,
		DownloadURL: out.DownloadURL,
		SizeBytes:   out.SizeBytes,
		TemplateID:  req.TemplateID,
		GeneratedAt: time.Now(),
	}, nil
}

// Download 按文件名下载已装配的文稿，调用方负责关闭返回的 ReadCloser
func (c *Client) Download(ctx context.Context, filename string) (io.ReadCloser, string, int64, error) {
	ctx, span := tracer.Start(ctx, "render.Download",
		trace.WithAttributes(attribute.String("render.filename", filename)))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/artifacts/"+url.PathEscape(filename), nil)
	if err != nil {
		return nil, "", 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, "", 0, fmt.Errorf("render service request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		err := responseError(resp)
		span.RecordError(err)
		return nil, "", 0, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return resp.Body, contentType, resp.ContentLength, nil
}

// getJSON 发起 GET 请求并解码 JSON 响应
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("render service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// responseError 将非 200 响应转为错误，附带响应体摘要
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("render service returned %d: %s", resp.StatusCode, string(body))
}
