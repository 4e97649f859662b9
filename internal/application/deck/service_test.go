package deck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckgen-api/internal/application/outline"
	"deckgen-api/internal/application/port"
	"deckgen-api/internal/application/provider"
	"deckgen-api/internal/application/source"
	"deckgen-api/internal/application/workflow"
	"deckgen-api/internal/config"
	"deckgen-api/internal/domain/entity"
	"deckgen-api/internal/events"
	apperrors "deckgen-api/pkg/errors"
)

// memoryProjects 内存项目仓储
type memoryProjects struct {
	mu    sync.RWMutex
	items map[string]*entity.Project
}

func newMemoryProjects() *memoryProjects {
	return &memoryProjects{items: make(map[string]*entity.Project)}
}

func (m *memoryProjects) Save(ctx context.Context, p *entity.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *p
	m.items[p.ID] = &clone
	return nil
}

func (m *memoryProjects) GetByID(ctx context.Context, id string) (*entity.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (m *memoryProjects) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// memorySettings 内存配置仓储
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

// fakeChatModel 固定输出的 ChatModel
// 设置 gate 后每次调用先向 entered 报到，再等待 gate 关闭才返回。
type fakeChatModel struct {
	mu      sync.Mutex
	calls   int
	content string
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	gate, entered := f.gate, f.entered
	err := f.err
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if f.content != "" {
		return schema.AssistantMessage(f.content, nil), nil
	}
	return schema.AssistantMessage(fmt.Sprintf("# 第%d版大纲\n\n## 第一章\n### 小节\n- 要点", n), nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (f *fakeChatModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeChatModel) setGate(gate, entered chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
	f.entered = entered
}

// fakeFactory 返回固定 ChatModel 的工厂
type fakeFactory struct {
	model *fakeChatModel
}

func (f *fakeFactory) Build(ctx context.Context, cfg *entity.ProviderConfig) (model.BaseChatModel, error) {
	return f.model, nil
}

func (f *fakeFactory) Invalidate() {}

// fakeRenderer 渲染服务替身
type fakeRenderer struct {
	mu          sync.Mutex
	templates   map[string]*entity.Template
	assembleErr error
	detailErr   error
	assembled   int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		templates: map[string]*entity.Template{
			"tpl-business": {ID: "tpl-business", Name: "商务简约"},
			"tpl-academic": {ID: "tpl-academic", Name: "学术报告"},
		},
	}
}

func (f *fakeRenderer) setAssembleErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assembleErr = err
}

func (f *fakeRenderer) setDetailErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailErr = err
}

func (f *fakeRenderer) assembleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assembled
}

func (f *fakeRenderer) ListTemplates(ctx context.Context) ([]*entity.Template, error) {
	out := make([]*entity.Template, 0, len(f.templates))
	for _, t := range f.templates {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeRenderer) GetTemplate(ctx context.Context, id string) (*entity.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.templates[id], nil
}

func (f *fakeRenderer) Assemble(ctx context.Context, req *port.AssembleRequest) (*entity.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assembleErr != nil {
		return nil, f.assembleErr
	}
	f.assembled++
	return &entity.Artifact{
		Filename:    fmt.Sprintf("deck-%d.pptx", f.assembled),
		DownloadURL: "/v1/artifacts/deck.pptx",
		TemplateID:  req.TemplateID,
		GeneratedAt: time.Now(),
	}, nil
}

func (f *fakeRenderer) Download(ctx context.Context, filename string) (io.ReadCloser, string, int64, error) {
	return io.NopCloser(nil), "application/octet-stream", 0, nil
}

type fixture struct {
	svc      *Service
	projects *memoryProjects
	model    *fakeChatModel
	renderer *fakeRenderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		LLM: config.LLMConfig{
			DefaultProvider: entity.ProviderDeepSeek,
			RequestTimeout:  5 * time.Second,
			TestTimeout:     2 * time.Second,
			MaxTokens:       1000,
			Temperature:     0.7,
		},
		Files: config.FilesConfig{
			MaxUploadBytes:    1024,
			AllowedExtensions: []string{".txt", ".md"},
		},
	}

	settings := &memorySettings{cfg: &entity.ProviderConfig{
		Provider: entity.ProviderDeepSeek,
		APIKey:   "sk-test",
		Model:    "deepseek-chat",
	}}
	chatModel := &fakeChatModel{}
	factory := &fakeFactory{model: chatModel}
	providers := provider.NewService(settings, factory, cfg)
	generator := outline.NewGenerator(providers, factory, cfg)
	sources := source.NewService(cfg, &stubExtractor{})
	renderer := newFakeRenderer()
	projects := newMemoryProjects()
	bus := events.NewBus(10)
	t.Cleanup(bus.Close)

	svc := NewService(projects, workflow.NewMachine(bus), sources, generator, renderer, bus)
	return &fixture{svc: svc, projects: projects, model: chatModel, renderer: renderer}
}

type stubExtractor struct{}

func (stubExtractor) ExtractURL(ctx context.Context, url string) (string, string, error) {
	return "extracted from " + url, "", nil
}

func (stubExtractor) ExtractFile(ctx context.Context, filename string, r io.Reader, size int64) (string, string, error) {
	return "extracted from " + filename, "", nil
}

func topicInput(topic string) *InputRequest {
	return &InputRequest{Source: entity.SourceTopic, Topic: topic}
}

func TestCreateProject(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.CreateProject(context.Background(), "季度汇报")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, entity.StepInput, p.CurrentStep)
	assert.Empty(t, p.StepCompleted)
}

func TestSubmitInputGeneratesOutline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")

	got, err := f.svc.SubmitInput(ctx, p.ID, topicInput("人工智能简史"))
	require.NoError(t, err)

	assert.Equal(t, "人工智能简史", got.InputContent)
	assert.Equal(t, entity.SourceTopic, got.InputSource)
	assert.True(t, got.StepCompleted[entity.StepInput])
	assert.True(t, got.StepCompleted[entity.StepOutline])
	assert.Equal(t, entity.StepOutline, got.CurrentStep)
	require.NotNil(t, got.Outline)
	assert.Equal(t, 1, got.Outline.ChapterCount())

	// 落盘与返回一致
	stored, err := f.svc.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Outline.Title, stored.Outline.Title)
}

func TestSubmitInputRejectsEmptyTopic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")

	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("   "))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeContentEmpty))

	stored, _ := f.svc.GetProject(ctx, p.ID)
	assert.Empty(t, stored.InputContent, "rejected input must not change state")
	assert.Empty(t, stored.StepCompleted)
}

func TestSubmitInputGenerationFailureKeepsInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	f.model.err = errors.New("upstream 500")

	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("主题"))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeProviderError))

	stored, _ := f.svc.GetProject(ctx, p.ID)
	assert.Equal(t, "主题", stored.InputContent, "input persists even when generation fails")
	assert.True(t, stored.StepCompleted[entity.StepInput])
	assert.False(t, stored.StepCompleted[entity.StepOutline])
	assert.Nil(t, stored.Outline)
}

func TestNavigateGatingViolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")

	_, err := f.svc.Navigate(ctx, p.ID, entity.StepTemplate)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeGatingViolation))

	_, err = f.svc.Navigate(ctx, p.ID, entity.StepArtifact)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeGatingViolation))
}

func TestRegenerateOutlineRequiresInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")

	_, err := f.svc.RegenerateOutline(ctx, p.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStepIncomplete))
}

func TestRegenerateOutlineOverwritesOutlineOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("主题"))
	require.NoError(t, err)
	_, err = f.svc.SelectTemplate(ctx, p.ID, "tpl-business")
	require.NoError(t, err)

	got, err := f.svc.RegenerateOutline(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, "第2版大纲", got.Outline.Title)
	assert.True(t, got.StepCompleted[entity.StepTemplate], "template selection survives regeneration")
	assert.True(t, got.StepCompleted[entity.StepArtifact])
	assert.Equal(t, "tpl-business", got.TemplateID)
	require.NotNil(t, got.Artifact, "assembled artifact survives regeneration")

	stored, _ := f.svc.GetProject(ctx, p.ID)
	assert.Equal(t, "第2版大纲", stored.Outline.Title)
	assert.Equal(t, "tpl-business", stored.TemplateID)
}

func TestSelectTemplateAssemblesArtifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("主题"))
	require.NoError(t, err)

	got, err := f.svc.SelectTemplate(ctx, p.ID, "tpl-business")
	require.NoError(t, err)

	assert.Equal(t, "tpl-business", got.TemplateID)
	assert.True(t, got.StepCompleted[entity.StepTemplate])
	assert.True(t, got.StepCompleted[entity.StepArtifact])
	assert.Equal(t, entity.StepArtifact, got.CurrentStep)
	require.NotNil(t, got.Artifact)
	assert.Equal(t, "tpl-business", got.Artifact.TemplateID)
}

func TestSelectTemplateUnknownTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("主题"))
	require.NoError(t, err)

	_, err = f.svc.SelectTemplate(ctx, p.ID, "tpl-missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeTemplateNotFound))

	stored, _ := f.svc.GetProject(ctx, p.ID)
	assert.Empty(t, stored.TemplateID)
	assert.False(t, stored.StepCompleted[entity.StepTemplate])
}

func TestSelectTemplateDetailFetchFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("主题"))
	require.NoError(t, err)
	f.renderer.setDetailErr(errors.New("render service down"))

	_, err = f.svc.SelectTemplate(ctx, p.ID, "tpl-business")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeRenderError))

	stored, _ := f.svc.GetProject(ctx, p.ID)
	assert.Empty(t, stored.TemplateID)
	assert.Equal(t, entity.StepOutline, stored.CurrentStep)
}

func TestAssemblyFailureKeepsTemplateSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("主题"))
	require.NoError(t, err)
	f.renderer.setAssembleErr(errors.New("renderer crashed"))

	_, err = f.svc.SelectTemplate(ctx, p.ID, "tpl-business")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAssemblyFailed))

	stored, _ := f.svc.GetProject(ctx, p.ID)
	assert.Equal(t, "tpl-business", stored.TemplateID, "template selection persists")
	assert.True(t, stored.StepCompleted[entity.StepTemplate])
	assert.False(t, stored.StepCompleted[entity.StepArtifact])
	assert.Nil(t, stored.Artifact)
}

func TestGetArtifactTriggersAssembly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("主题"))
	require.NoError(t, err)

	// 先让装配失败，使模板已选而成品缺失
	f.renderer.setAssembleErr(errors.New("transient"))
	_, err = f.svc.SelectTemplate(ctx, p.ID, "tpl-academic")
	require.Error(t, err)

	// 故障恢复后按需装配
	f.renderer.setAssembleErr(nil)
	got, err := f.svc.GetArtifact(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Artifact)
	assert.True(t, got.StepCompleted[entity.StepArtifact])
}

func TestNavigateToArtifactAutoAssembles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("主题"))
	require.NoError(t, err)

	// 模板已选但装配曾失败，项目停在成品缺失的状态
	f.renderer.setAssembleErr(errors.New("transient"))
	_, err = f.svc.SelectTemplate(ctx, p.ID, "tpl-business")
	require.Error(t, err)
	f.renderer.setAssembleErr(nil)

	got, err := f.svc.Navigate(ctx, p.ID, entity.StepArtifact)
	require.NoError(t, err)
	require.NotNil(t, got.Artifact)
	assert.True(t, got.StepCompleted[entity.StepArtifact])
	assert.Equal(t, entity.StepArtifact, got.CurrentStep)
}

func TestGetArtifactRequiresPrerequisites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")

	_, err := f.svc.GetArtifact(ctx, p.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStepIncomplete))
}

func TestNewInputInvalidatesDownstream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("旧主题"))
	require.NoError(t, err)
	_, err = f.svc.SelectTemplate(ctx, p.ID, "tpl-business")
	require.NoError(t, err)

	got, err := f.svc.SubmitInput(ctx, p.ID, topicInput("新主题"))
	require.NoError(t, err)

	assert.Equal(t, "新主题", got.InputContent)
	assert.True(t, got.StepCompleted[entity.StepOutline], "fresh outline generated")
	assert.False(t, got.StepCompleted[entity.StepTemplate])
	assert.False(t, got.StepCompleted[entity.StepArtifact])
	assert.Empty(t, got.TemplateID)
	assert.Nil(t, got.Artifact)
}

func TestStaleGenerationDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("主题"))
	require.NoError(t, err)

	before, _ := f.svc.GetProject(ctx, p.ID)
	calls := f.model.callCount()

	// 携带过期序号的在途生成：结果必须作废
	got, err := f.svc.generateOutline(ctx, p.ID, 0)
	require.NoError(t, err)

	assert.Equal(t, before.Outline.Title, got.Outline.Title)
	stored, _ := f.svc.GetProject(ctx, p.ID)
	assert.Equal(t, before.Outline.Title, stored.Outline.Title, "stale result must not overwrite")
	assert.Equal(t, calls+1, f.model.callCount())
}

func TestResetIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	_, err := f.svc.SubmitInput(ctx, p.ID, &InputRequest{
		Source: entity.SourceTopic,
		Topic:  "主题",
		Settings: &entity.ProjectSettings{
			Language:      "en",
			OutlineLength: entity.OutlineLengthLong,
		},
	})
	require.NoError(t, err)
	_, err = f.svc.SelectTemplate(ctx, p.ID, "tpl-business")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := f.svc.Reset(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StepInput, got.CurrentStep)
		assert.Empty(t, got.StepCompleted)
		assert.Empty(t, got.Title, "title resets with the rest of the state")
		assert.Empty(t, got.InputContent)
		assert.Nil(t, got.Outline)
		assert.Nil(t, got.Artifact)
		assert.Equal(t, "zh", got.Settings.Language, "settings restored to initial values")
		assert.Equal(t, entity.OutlineLengthMedium, got.Settings.OutlineLength)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetProject(context.Background(), "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeProjectNotFound))
}

func TestFileInputGoesThroughExtractor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")

	got, err := f.svc.SubmitInput(ctx, p.ID, &InputRequest{
		Source:   entity.SourceFile,
		Filename: "notes.txt",
		File:     nil,
		FileSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "extracted from notes.txt", got.InputContent)
	assert.Equal(t, entity.SourceFile, got.InputSource)
	assert.Equal(t, "notes", got.Title, "title derived from the uploaded filename")
}

func TestTopicInputKeepsProjectTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "季度汇报")

	got, err := f.svc.SubmitInput(ctx, p.ID, topicInput("市场分析"))
	require.NoError(t, err)
	assert.Equal(t, "季度汇报", got.Title)
}

func TestInFlightGenerationYieldsToNewerInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("旧输入"))
	require.NoError(t, err)

	gate := make(chan struct{})
	entered := make(chan struct{}, 2)
	f.model.setGate(gate, entered)

	// 旧一轮重新生成卡在模型调用上
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.svc.RegenerateOutline(ctx, p.ID)
	}()
	<-entered

	// 旧生成尚未返回时提交新输入
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("新输入"))
		assert.NoError(t, err)
	}()
	<-entered

	close(gate)
	wg.Wait()

	stored, err := f.svc.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "新输入", stored.InputContent, "newer input wins over the in-flight result")
	require.NotNil(t, stored.Outline)
	assert.Equal(t, "第3版大纲", stored.Outline.Title, "stale in-flight outline must not land")
}

func TestConcurrentArtifactRequestsAssembleOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.svc.CreateProject(ctx, "test")
	_, err := f.svc.SubmitInput(ctx, p.ID, topicInput("主题"))
	require.NoError(t, err)

	// 模板已选但装配曾失败，使成品缺失
	f.renderer.setAssembleErr(errors.New("transient"))
	_, err = f.svc.SelectTemplate(ctx, p.ID, "tpl-business")
	require.Error(t, err)
	f.renderer.setAssembleErr(nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.svc.GetArtifact(ctx, p.ID)
			assert.NoError(t, err)
			if assert.NotNil(t, got) {
				assert.NotNil(t, got.Artifact)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.renderer.assembleCount(), "concurrent requests share a single assembly")
}
