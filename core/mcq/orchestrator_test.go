package mcq

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"EchoQuiz/config"
	"EchoQuiz/core/channel"
	"EchoQuiz/core/llm"
	"EchoQuiz/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEmitter 记录发出的事件，代替真实的通道集线器
type recordingEmitter struct {
	events []channel.MCQStatusData
}

func (r *recordingEmitter) Emit(channelID string, eventType channel.EventType, data interface{}) {
	if status, ok := data.(channel.MCQStatusData); ok {
		r.events = append(r.events, status)
	}
}

func (r *recordingEmitter) statuses() []string {
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Status)
	}
	return out
}

type fakeTranscriptRepo struct {
	records map[string]*model.Transcript
}

func (f *fakeTranscriptRepo) Upsert(ctx context.Context, transcript *model.Transcript) error {
	f.records[transcript.FileID] = transcript
	return nil
}

func (f *fakeTranscriptRepo) GetByFileID(ctx context.Context, fileID string) (*model.Transcript, error) {
	return f.records[fileID], nil
}

func (f *fakeTranscriptRepo) ListAll(ctx context.Context) ([]*model.Transcript, error) {
	return nil, nil
}

func (f *fakeTranscriptRepo) Delete(ctx context.Context, fileID string) (int64, error) {
	return 0, nil
}

func (f *fakeTranscriptRepo) Count(ctx context.Context) (int64, error) { return 0, nil }

type fakeMCQRepo struct {
	mcqs []*model.MCQ
}

func (f *fakeMCQRepo) Create(ctx context.Context, mcq *model.MCQ) error {
	f.mcqs = append(f.mcqs, mcq)
	return nil
}

func (f *fakeMCQRepo) GetBySegment(ctx context.Context, fileID, segmentID string) ([]*model.MCQ, error) {
	var out []*model.MCQ
	for _, m := range f.mcqs {
		if m.FileID == fileID && m.SegmentID == segmentID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMCQRepo) GetByID(ctx context.Context, id int64) (*model.MCQ, error) {
	return nil, nil
}

func (f *fakeMCQRepo) Update(ctx context.Context, mcq *model.MCQ) error {
	return nil
}

func (f *fakeMCQRepo) DeleteByID(ctx context.Context, id int64) error {
	return nil
}

func (f *fakeMCQRepo) DeleteByFileID(ctx context.Context, fileID string) (int64, error) {
	return 0, nil
}

func (f *fakeMCQRepo) Count(ctx context.Context) (int64, error) {
	return 0, nil
}

// newLLMServer 起一个假的出题服务，/health 恒正常，/generate 返回给定题目
func newLLMServer(t *testing.T, response *llm.GenerateResponse) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(response)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestOrchestrator(t *testing.T, llmURL string) (*Orchestrator, *fakeMCQRepo, *fakeTranscriptRepo, *recordingEmitter, *config.Config) {
	t.Helper()
	cfg := &config.Config{TranscriptDir: t.TempDir()}
	mcqRepo := &fakeMCQRepo{}
	transcriptRepo := &fakeTranscriptRepo{records: make(map[string]*model.Transcript)}
	emitter := &recordingEmitter{}
	orch := NewOrchestrator(cfg, mcqRepo, transcriptRepo, llm.NewClient(llmURL), emitter)
	return orch, mcqRepo, transcriptRepo, emitter, cfg
}

func validMCQ(question string) llm.GeneratedMCQ {
	return llm.GeneratedMCQ{
		Question: question,
		Options:  []string{"A", "B", "C", "D"},
		Correct:  1,
	}
}

func TestGetOrGenerateCacheHit(t *testing.T) {
	// LLM地址不可达：缓存命中时绝不应该发起调用
	orch, mcqRepo, _, emitter, _ := newTestOrchestrator(t, "http://127.0.0.1:0")
	ctx := context.Background()

	mcqRepo.Create(ctx, &model.MCQ{
		FileID:    "file",
		SegmentID: "00_05",
		Question:  "existing",
		Options:   model.OptionList{"A", "B", "C", "D"},
	})

	result, err := orch.GetOrGenerate(ctx, "chan", "file", "00_05")
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "existing", result[0].Question)
	// 命中路径不发任何状态事件
	assert.Empty(t, emitter.events)
}

func TestGetOrGenerateHappyPath(t *testing.T) {
	server := newLLMServer(t, &llm.GenerateResponse{
		Success: true,
		MCQs:    []llm.GeneratedMCQ{validMCQ("q1"), validMCQ("q2")},
		Model:   "llama3",
		GPUUsed: true,
	})
	orch, mcqRepo, _, emitter, cfg := newTestOrchestrator(t, server.URL)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.TranscriptDir, "file_00_05.txt"), []byte("segment text"), 0644))

	result, err := orch.GetOrGenerate(ctx, "chan", "file", "00_05")
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "llama3", result[0].Model)
	assert.True(t, result[0].GPUUsed)
	assert.True(t, result[0].IsAutoGenerated)

	saved, _ := mcqRepo.GetBySegment(ctx, "file", "00_05")
	assert.Len(t, saved, 2)

	assert.Equal(t, []string{"started", "processing", "saving", "completed"}, emitter.statuses())
}

func TestGetOrGenerateDiscardsInvalidIndividually(t *testing.T) {
	server := newLLMServer(t, &llm.GenerateResponse{
		Success: true,
		MCQs: []llm.GeneratedMCQ{
			validMCQ("good"),
			{Question: "three options", Options: []string{"A", "B", "C"}, Correct: 0},
			{Question: "bad index", Options: []string{"A", "B", "C", "D"}, Correct: 4},
			{Question: "", Options: []string{"A", "B", "C", "D"}, Correct: 0},
		},
	})
	orch, mcqRepo, _, _, cfg := newTestOrchestrator(t, server.URL)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.TranscriptDir, "file_00_05.txt"), []byte("text"), 0644))

	result, err := orch.GetOrGenerate(ctx, "chan", "file", "00_05")
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "good", result[0].Question)

	saved, _ := mcqRepo.GetBySegment(ctx, "file", "00_05")
	assert.Len(t, saved, 1)
}

func TestGetOrGenerateAllInvalid(t *testing.T) {
	server := newLLMServer(t, &llm.GenerateResponse{
		Success: true,
		MCQs:    []llm.GeneratedMCQ{{Question: "bad", Options: []string{"A"}, Correct: 0}},
	})
	orch, _, _, emitter, cfg := newTestOrchestrator(t, server.URL)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.TranscriptDir, "file_00_05.txt"), []byte("text"), 0644))

	_, err := orch.GetOrGenerate(ctx, "chan", "file", "00_05")
	assert.ErrorIs(t, err, ErrNoValidQuestions)
	assert.Equal(t, "error", emitter.events[len(emitter.events)-1].Status)
}

func TestGetOrGenerateSegmentNotFound(t *testing.T) {
	server := newLLMServer(t, &llm.GenerateResponse{Success: true})
	orch, _, _, emitter, _ := newTestOrchestrator(t, server.URL)

	_, err := orch.GetOrGenerate(context.Background(), "chan", "missing", "00_05")
	assert.ErrorIs(t, err, ErrSegmentNotFound)
	// 文本解析失败在健康检查之前，不会有 processing 事件
	assert.Equal(t, []string{"started", "error"}, emitter.statuses())
}

func TestGetOrGenerateServiceDown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	orch, _, _, _, cfg := newTestOrchestrator(t, server.URL)
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.TranscriptDir, "file_00_05.txt"), []byte("text"), 0644))

	_, err := orch.GetOrGenerate(context.Background(), "chan", "file", "00_05")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestResolveSegmentTextSources(t *testing.T) {
	orch, _, transcriptRepo, _, cfg := newTestOrchestrator(t, "http://127.0.0.1:0")
	ctx := context.Background()

	t.Run("数据库分段优先", func(t *testing.T) {
		transcriptRepo.Upsert(ctx, &model.Transcript{
			FileID: "db-file",
			Segments: model.SegmentList{
				{SegmentID: "00_05", Text: "from database"},
			},
		})
		text, err := orch.ResolveSegmentText(ctx, "db-file", "00_05")
		require.NoError(t, err)
		assert.Equal(t, "from database", text)
	})

	t.Run("磁盘精确文件", func(t *testing.T) {
		require.NoError(t, os.WriteFile(
			filepath.Join(cfg.TranscriptDir, "disk-file_05_10.txt"), []byte("from disk"), 0644))
		text, err := orch.ResolveSegmentText(ctx, "disk-file", "05_10")
		require.NoError(t, err)
		assert.Equal(t, "from disk", text)
	})

	t.Run("模糊日期匹配", func(t *testing.T) {
		// 客户端的 fileId 与磁盘文件名对不上，按日期部分匹配
		require.NoError(t, os.WriteFile(
			filepath.Join(cfg.TranscriptDir, "9990000000000-renamed-talk_10_15.txt"),
			[]byte("fuzzy match"), 0644))
		text, err := orch.ResolveSegmentText(ctx, "1111-renamed-talk", "10_15")
		require.NoError(t, err)
		assert.Equal(t, "fuzzy match", text)
	})

	t.Run("完全找不到", func(t *testing.T) {
		_, err := orch.ResolveSegmentText(ctx, "nope", "99_99")
		assert.True(t, errors.Is(err, ErrSegmentNotFound))
	})
}
