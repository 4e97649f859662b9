package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckgen-api/internal/application/deck"
	"deckgen-api/internal/application/outline"
	"deckgen-api/internal/application/port"
	"deckgen-api/internal/application/provider"
	"deckgen-api/internal/application/source"
	"deckgen-api/internal/application/workflow"
	"deckgen-api/internal/config"
	"deckgen-api/internal/domain/entity"
	"deckgen-api/internal/events"
	"deckgen-api/internal/interfaces/http/handler"
	"deckgen-api/internal/interfaces/http/router"
)

const sampleOutlineMarkdown = "# 年度汇报\n\n## 业务回顾\n### 核心指标\n- 营收增长\n\n## 明年规划\n### 重点方向\n- 新市场"

type memoryProjects struct {
	mu    sync.Mutex
	items map[string]*entity.Project
}

func newMemoryProjects() *memoryProjects {
	return &memoryProjects{items: make(map[string]*entity.Project)}
}

func (m *memoryProjects) clone(p *entity.Project) *entity.Project {
	data, _ := json.Marshal(p)
	var out entity.Project
	_ = json.Unmarshal(data, &out)
	return &out
}

func (m *memoryProjects) Save(ctx context.Context, p *entity.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[p.ID] = m.clone(p)
	return nil
}

func (m *memoryProjects) GetByID(ctx context.Context, id string) (*entity.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return m.clone(p), nil
}

func (m *memoryProjects) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

type memorySettings struct {
	mu  sync.Mutex
	cfg *entity.ProviderConfig
}

func (m *memorySettings) SaveProviderConfig(ctx context.Context, cfg *entity.ProviderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	return nil
}

func (m *memorySettings) GetProviderConfig(ctx context.Context) (*entity.ProviderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg, nil
}

type fakeChatModel struct {
	err error
}

func (f *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(sampleOutlineMarkdown, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, io.EOF
}

type fakeFactory struct {
	model model.BaseChatModel
}

func (f *fakeFactory) Build(ctx context.Context, cfg *entity.ProviderConfig) (model.BaseChatModel, error) {
	return f.model, nil
}

func (f *fakeFactory) Invalidate() {}

type fakeRenderer struct {
	templates []*entity.Template
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{templates: []*entity.Template{
		{ID: "tpl-business", Name: "商务简约", Tags: []string{"business"}},
		{ID: "tpl-academic", Name: "学术报告", Tags: []string{"academic"}},
	}}
}

func (f *fakeRenderer) ListTemplates(ctx context.Context) ([]*entity.Template, error) {
	return f.templates, nil
}

func (f *fakeRenderer) GetTemplate(ctx context.Context, id string) (*entity.Template, error) {
	for _, tpl := range f.templates {
		if tpl.ID == id {
			return tpl, nil
		}
	}
	return nil, nil
}

func (f *fakeRenderer) Assemble(ctx context.Context, req *port.AssembleRequest) (*entity.Artifact, error) {
	return &entity.Artifact{
		Filename:    "deck.pptx",
		DownloadURL: "/v1/artifacts/deck.pptx",
		SizeBytes:   2048,
		TemplateID:  req.TemplateID,
		GeneratedAt: time.Now(),
	}, nil
}

func (f *fakeRenderer) Download(ctx context.Context, filename string) (io.ReadCloser, string, int64, error) {
	content := "binary presentation bytes"
	return io.NopCloser(strings.NewReader(content)),
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		int64(len(content)), nil
}

type stubExtractor struct{}

func (s *stubExtractor) ExtractURL(ctx context.Context, url string) (string, string, error) {
	return "网页正文内容", "", nil
}

func (s *stubExtractor) ExtractFile(ctx context.Context, filename string, r io.Reader, size int64) (string, string, error) {
	data, _ := io.ReadAll(r)
	return string(data), "", nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	return newTestRouterWithModel(t, &fakeChatModel{})
}

func newTestRouterWithModel(t *testing.T, chatModel model.BaseChatModel) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		LLM: config.LLMConfig{
			DefaultProvider: entity.ProviderDeepSeek,
			RequestTimeout:  5 * time.Second,
			TestTimeout:     time.Second,
			MaxTokens:       1000,
			Temperature:     0.7,
		},
		Files: config.FilesConfig{
			MaxUploadBytes:    1 << 20,
			AllowedExtensions: []string{".pdf", ".docx", ".txt", ".md"},
		},
	}

	projects := newMemoryProjects()
	settings := &memorySettings{cfg: &entity.ProviderConfig{
		Provider: entity.ProviderDeepSeek,
		APIKey:   "sk-test",
		Model:    "deepseek-chat",
	}}
	factory := &fakeFactory{model: chatModel}
	bus := events.NewBus(16)
	t.Cleanup(bus.Close)

	providers := provider.NewService(settings, factory, cfg)
	generator := outline.NewGenerator(providers, factory, cfg)
	sources := source.NewService(cfg, &stubExtractor{})
	machine := workflow.NewMachine(bus)
	decks := deck.NewService(projects, machine, sources, generator, newFakeRenderer(), bus)

	engine := gin.New()
	v1 := engine.Group("/v1")
	router.RegisterV1Routes(v1, &router.Handlers{
		Project:  handler.NewProjectHandler(decks),
		Provider: handler.NewProviderHandler(providers, bus),
		Template: handler.NewTemplateHandler(decks),
	})
	return engine
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		ErrorCode string `json:"error_code"`
		Details   string `json:"details"`
	} `json:"error"`
}

type projectBody struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	CurrentStep   string           `json:"current_step"`
	StepCompleted map[string]bool  `json:"step_completed"`
	InputSource   string           `json:"input_source"`
	Outline       *entity.Outline  `json:"outline"`
	TemplateID    string           `json:"template_id"`
	Artifact      *entity.Artifact `json:"artifact"`
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, *envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, &env
}

func decodeProject(t *testing.T, env *envelope) *projectBody {
	t.Helper()
	var p projectBody
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return &p
}

func TestCreateProject(t *testing.T) {
	engine := newTestRouter(t)

	rec, env := doJSON(t, engine, http.MethodPost, "/v1/projects", gin.H{"title": "年度汇报"})
	require.Equal(t, http.StatusCreated, rec.Code)

	p := decodeProject(t, env)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "年度汇报", p.Title)
	assert.Equal(t, "input", p.CurrentStep)

	// 缺少标题被参数校验拦截
	rec, _ = doJSON(t, engine, http.MethodPost, "/v1/projects", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProjectWorkflowOverHTTP(t *testing.T) {
	engine := newTestRouter(t)

	_, env := doJSON(t, engine, http.MethodPost, "/v1/projects", gin.H{"title": "年度汇报"})
	pid := decodeProject(t, env).ID

	// 未完成前置步骤时禁止进入后续步骤
	rec, env := doJSON(t, engine, http.MethodPost, "/v1/projects/"+pid+"/step", gin.H{"step": "artifact"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "3001", env.Error.ErrorCode)

	// 提交主题输入，自动生成大纲并推进到大纲步骤
	rec, env = doJSON(t, engine, http.MethodPost, "/v1/projects/"+pid+"/input",
		gin.H{"source": "topic", "topic": "人工智能年度总结"})
	require.Equal(t, http.StatusOK, rec.Code)
	p := decodeProject(t, env)
	assert.Equal(t, "outline", p.CurrentStep)
	assert.True(t, p.StepCompleted["input"])
	assert.True(t, p.StepCompleted["outline"])
	require.NotNil(t, p.Outline)
	assert.Equal(t, "年度汇报", p.Outline.Title)

	// 选择模板后立即装配成品
	rec, env = doJSON(t, engine, http.MethodPost, "/v1/projects/"+pid+"/template",
		gin.H{"template_id": "tpl-business"})
	require.Equal(t, http.StatusOK, rec.Code)
	p = decodeProject(t, env)
	assert.Equal(t, "tpl-business", p.TemplateID)
	require.NotNil(t, p.Artifact)
	assert.Equal(t, "deck.pptx", p.Artifact.Filename)
	assert.Equal(t, "artifact", p.CurrentStep)

	// 状态已持久化，重新读取结果一致
	rec, env = doJSON(t, engine, http.MethodGet, "/v1/projects/"+pid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p = decodeProject(t, env)
	assert.True(t, p.StepCompleted["artifact"])
}

func TestProjectNotFound(t *testing.T) {
	engine := newTestRouter(t)

	rec, env := doJSON(t, engine, http.MethodGet, "/v1/projects/no-such-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "3002", env.Error.ErrorCode)
}

func TestSubmitInputValidation(t *testing.T) {
	engine := newTestRouter(t)

	_, env := doJSON(t, engine, http.MethodPost, "/v1/projects", gin.H{"title": "年度汇报"})
	pid := decodeProject(t, env).ID

	tests := []struct {
		name string
		body gin.H
	}{
		{"unknown source", gin.H{"source": "email", "topic": "x"}},
		{"invalid language", gin.H{"source": "topic", "topic": "x", "language": "fr"}},
		{"invalid outline length", gin.H{"source": "topic", "topic": "x", "outline_length": "huge"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := doJSON(t, engine, http.MethodPost, "/v1/projects/"+pid+"/input", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitInputMultipartFile(t *testing.T) {
	engine := newTestRouter(t)

	_, env := doJSON(t, engine, http.MethodPost, "/v1/projects", gin.H{"title": "年度汇报"})
	pid := decodeProject(t, env).ID

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("会议纪要原文"))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("language", "en"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/projects/"+pid+"/input", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	p := decodeProject(t, &out)
	assert.Equal(t, entity.SourceFile, p.InputSource)
	assert.Equal(t, "notes", p.Title, "title derived from the uploaded filename")
	assert.True(t, p.StepCompleted["outline"])
}

func TestProviderEndpoints(t *testing.T) {
	engine := newTestRouter(t)

	t.Run("get returns config and catalog", func(t *testing.T) {
		rec, env := doJSON(t, engine, http.MethodGet, "/v1/provider", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var state struct {
			Current struct {
				Provider   string `json:"provider"`
				APIKey     string `json:"api_key"`
				Configured bool   `json:"configured"`
			} `json:"current"`
			Catalog []provider.CatalogEntry `json:"catalog"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &state))
		assert.Equal(t, entity.ProviderDeepSeek, state.Current.Provider)
		assert.True(t, state.Current.Configured)
		assert.NotContains(t, state.Current.APIKey, "sk-test")
		assert.Len(t, state.Catalog, 4)
	})

	t.Run("save valid config", func(t *testing.T) {
		rec, env := doJSON(t, engine, http.MethodPut, "/v1/provider",
			gin.H{"provider": "openai", "api_key": "sk-openai-key-123", "model": "gpt-4o"})
		require.Equal(t, http.StatusOK, rec.Code)

		var view struct {
			Provider   string `json:"provider"`
			APIKey     string `json:"api_key"`
			Configured bool   `json:"configured"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &view))
		assert.Equal(t, "openai", view.Provider)
		assert.True(t, view.Configured)
		assert.Contains(t, view.APIKey, "*")
	})

	t.Run("custom without base url rejected", func(t *testing.T) {
		rec, env := doJSON(t, engine, http.MethodPut, "/v1/provider",
			gin.H{"provider": "custom", "api_key": "sk-1", "model": "local-model"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "4001", env.Error.ErrorCode)
	})

	t.Run("missing api key rejected by binding", func(t *testing.T) {
		rec, _ := doJSON(t, engine, http.MethodPut, "/v1/provider",
			gin.H{"provider": "openai", "model": "gpt-4o"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("test connection without body probes current config", func(t *testing.T) {
		rec, env := doJSON(t, engine, http.MethodPost, "/v1/provider/test", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var result provider.TestResult
		require.NoError(t, json.Unmarshal(env.Data, &result))
		assert.True(t, result.Success)
		assert.NotEmpty(t, result.Preview)
	})

	t.Run("test connection failure is a 200 diagnostic result", func(t *testing.T) {
		failing := newTestRouterWithModel(t, &fakeChatModel{err: errors.New("401 unauthorized")})
		rec, env := doJSON(t, failing, http.MethodPost, "/v1/provider/test", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var result provider.TestResult
		require.NoError(t, json.Unmarshal(env.Data, &result))
		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "connection test failed")
	})
}

func TestTemplateEndpoints(t *testing.T) {
	engine := newTestRouter(t)

	rec, env := doJSON(t, engine, http.MethodGet, "/v1/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var templates []*entity.Template
	require.NoError(t, json.Unmarshal(env.Data, &templates))
	assert.Len(t, templates, 2)

	rec, env = doJSON(t, engine, http.MethodGet, "/v1/templates/tpl-academic", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tpl entity.Template
	require.NoError(t, json.Unmarshal(env.Data, &tpl))
	assert.Equal(t, "学术报告", tpl.Name)

	rec, env = doJSON(t, engine, http.MethodGet, "/v1/templates/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "3003", env.Error.ErrorCode)
}

func TestDownloadArtifact(t *testing.T) {
	engine := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/artifacts/deck.pptx", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="deck.pptx"`)
	assert.Equal(t, "binary presentation bytes", rec.Body.String())
}
