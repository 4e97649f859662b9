// Package source 将话题、文件、URL 三类输入统一为文稿生成的原始内容
package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"deckgen-api/internal/application/port"
	"deckgen-api/internal/config"
	apperrors "deckgen-api/pkg/errors"
	"deckgen-api/pkg/logger"
	"deckgen-api/pkg/metrics"
)

// Service 内容来源适配器
type Service struct {
	files     *config.FilesConfig
	extractor port.Extractor
}

// NewService 创建内容来源适配器
func NewService(cfg *config.Config, extractor port.Extractor) *Service {
	return &Service{
		files:     &cfg.Files,
		extractor: extractor,
	}
}

// FromTopic 话题输入：去除首尾空白，空内容拒绝
// 话题不推导标题，项目标题保持用户填写的值。
func (s *Service) FromTopic(ctx context.Context, topic string) (string, string, error) {
	content := strings.TrimSpace(topic)
	if content == "" {
		return "", "", apperrors.ErrContentEmpty.WithDetail("topic must not be empty")
	}
	return content, "", nil
}

// FromFile 文件输入：先校验扩展名与大小，再交给提取服务
// 校验失败不消耗上传内容，错误码区分类型与大小两种拒绝原因。
// 提取服务未给出标题时以去掉扩展名的文件名作为标题。
func (s *Service) FromFile(ctx context.Context, filename string, r io.Reader, size int64) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !s.allowedExt(ext) {
		metrics.ExtractionTotal.WithLabelValues("file", "rejected").Inc()
		return "", "", apperrors.ErrFileType.WithDetail(
			fmt.Sprintf("unsupported file type %q, allowed: %s", ext, strings.Join(s.files.AllowedExtensions, ", ")))
	}
	if size > s.files.MaxUploadBytes {
		metrics.ExtractionTotal.WithLabelValues("file", "rejected").Inc()
		return "", "", apperrors.ErrFileTooLarge.WithDetail(
			fmt.Sprintf("file size %d exceeds limit %d", size, s.files.MaxUploadBytes))
	}

	content, title, err := s.extractor.ExtractFile(ctx, filename, r, size)
	if err != nil {
		metrics.ExtractionTotal.WithLabelValues("file", "error").Inc()
		return "", "", apperrors.Wrap(err, apperrors.CodeExtractError, "failed to extract file content")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		metrics.ExtractionTotal.WithLabelValues("file", "empty").Inc()
		return "", "", apperrors.ErrContentEmpty.WithDetail("no text could be extracted from file")
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	metrics.ExtractionTotal.WithLabelValues("file", "success").Inc()
	logger.Info(ctx, "file content extracted", "filename", filename, "size", size, "chars", len(content))
	return content, title, nil
}

// FromURL 网页输入：校验地址格式后交给提取服务，上游错误原样透传到错误详情
// 提取服务未给出标题时按来源地址合成标题。
func (s *Service) FromURL(ctx context.Context, rawURL string) (string, string, error) {
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", "", apperrors.ErrValidation.WithDetail("url must be a valid http or https address")
	}

	content, title, err := s.extractor.ExtractURL(ctx, rawURL)
	if err != nil {
		metrics.ExtractionTotal.WithLabelValues("url", "error").Inc()
		return "", "", apperrors.Wrap(err, apperrors.CodeExtractError, "failed to extract url content")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		metrics.ExtractionTotal.WithLabelValues("url", "empty").Inc()
		return "", "", apperrors.ErrContentEmpty.WithDetail("no text could be extracted from url")
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = fmt.Sprintf("来自 %s 的内容", rawURL)
	}

	metrics.ExtractionTotal.WithLabelValues("url", "success").Inc()
	logger.Info(ctx, "url content extracted", "url", rawURL, "chars", len(content))
	return content, title, nil
}

func (s *Service) allowedExt(ext string) bool {
	for _, allowed := range s.files.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
