package transcript

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"EchoQuiz/config"
	"EchoQuiz/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTranscriptRepo 内存版转录仓库
type fakeTranscriptRepo struct {
	records map[string]*model.Transcript
}

func newFakeTranscriptRepo() *fakeTranscriptRepo {
	return &fakeTranscriptRepo{records: make(map[string]*model.Transcript)}
}

func (f *fakeTranscriptRepo) Upsert(ctx context.Context, transcript *model.Transcript) error {
	f.records[transcript.FileID] = transcript
	return nil
}

func (f *fakeTranscriptRepo) GetByFileID(ctx context.Context, fileID string) (*model.Transcript, error) {
	return f.records[fileID], nil
}

func (f *fakeTranscriptRepo) ListAll(ctx context.Context) ([]*model.Transcript, error) {
	out := make([]*model.Transcript, 0, len(f.records))
	for _, record := range f.records {
		out = append(out, record)
	}
	return out, nil
}

func (f *fakeTranscriptRepo) Delete(ctx context.Context, fileID string) (int64, error) {
	if _, ok := f.records[fileID]; !ok {
		return 0, nil
	}
	delete(f.records, fileID)
	return 1, nil
}

func (f *fakeTranscriptRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(f.records)), nil
}

// fakeMCQRepo 内存版选择题仓库，只实现 Store 用到的方法
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

func (f *fakeMCQRepo) GetByID(ctx context.Context, id int64) (*model.MCQ, error) { return nil, nil }
func (f *fakeMCQRepo) Update(ctx context.Context, mcq *model.MCQ) error          { return nil }
func (f *fakeMCQRepo) DeleteByID(ctx context.Context, id int64) error            { return nil }

func (f *fakeMCQRepo) DeleteByFileID(ctx context.Context, fileID string) (int64, error) {
	var kept []*model.MCQ
	var removed int64
	for _, m := range f.mcqs {
		if m.FileID == fileID {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	f.mcqs = kept
	return removed, nil
}

func (f *fakeMCQRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(f.mcqs)), nil
}

func newTestStore(t *testing.T) (*Store, *fakeTranscriptRepo, *fakeMCQRepo, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		TranscriptDir: t.TempDir(),
		UploadDir:     t.TempDir(),
	}
	transcriptRepo := newFakeTranscriptRepo()
	mcqRepo := &fakeMCQRepo{}
	return NewStore(cfg, transcriptRepo, mcqRepo), transcriptRepo, mcqRepo, cfg
}

func writeArtifacts(t *testing.T, dir, fileID, fullText, segmentText string) {
	t.Helper()
	fullPath := filepath.Join(dir, fileID+"_full.txt")
	segPath := filepath.Join(dir, fileID+"_00_05.txt")
	require.NoError(t, os.WriteFile(fullPath, []byte(fullText), 0644))
	require.NoError(t, os.WriteFile(segPath, []byte(segmentText), 0644))

	meta := model.Metadata{
		VideoFile:      "uploads/" + fileID + ".mp4",
		ModelSize:      "small",
		Chunks:         []string{"00_05"},
		ChunkFiles:     []string{segPath},
		FullTranscript: fullPath,
	}
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileID+"_metadata.json"), data, 0644))
}

func TestScanBackfillsMissingRecords(t *testing.T) {
	store, repo, _, cfg := newTestStore(t)
	ctx := context.Background()

	writeArtifacts(t, cfg.TranscriptDir, "1718000000000-talk", "full text", "segment text")
	writeArtifacts(t, cfg.TranscriptDir, "1718000000001-other", "another", "part")

	restored, err := store.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)

	record, err := repo.GetByFileID(ctx, "1718000000000-talk")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "full text", record.FullTranscript)
	assert.True(t, record.Processed)
	require.Len(t, record.Segments, 1)
	assert.Equal(t, "segment text", record.Segments[0].Text)
}

func TestScanIdempotent(t *testing.T) {
	store, _, _, cfg := newTestStore(t)
	ctx := context.Background()

	writeArtifacts(t, cfg.TranscriptDir, "1718000000000-talk", "full", "seg")

	restored, err := store.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	// 已有记录直接跳过，重复扫描不产生变化
	restored, err = store.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, restored)
}

func TestScanSkipsBrokenDescriptor(t *testing.T) {
	store, repo, _, cfg := newTestStore(t)
	ctx := context.Background()

	writeArtifacts(t, cfg.TranscriptDir, "1718000000000-good", "full", "seg")
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.TranscriptDir, "1718000000001-bad_metadata.json"),
		[]byte("not json"), 0644))

	restored, err := store.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	record, _ := repo.GetByFileID(ctx, "1718000000001-bad")
	assert.Nil(t, record)
}

func TestScanMissingDirIsNoop(t *testing.T) {
	store, _, _, cfg := newTestStore(t)
	cfg.TranscriptDir = filepath.Join(cfg.TranscriptDir, "does-not-exist")

	restored, err := store.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, restored)
}

func TestDeleteRemovesEverything(t *testing.T) {
	store, repo, mcqRepo, cfg := newTestStore(t)
	ctx := context.Background()
	fileID := "1718000000000-talk"

	writeArtifacts(t, cfg.TranscriptDir, fileID, "full", "seg")
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.UploadDir, fileID+".mp4"), []byte("media"), 0644))
	// 不相关的文件必须留下
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.TranscriptDir, "1718000000099-keep_full.txt"), []byte("keep"), 0644))

	repo.Upsert(ctx, &model.Transcript{FileID: fileID, Processed: true})
	mcqRepo.Create(ctx, &model.MCQ{FileID: fileID, SegmentID: "00_05"})
	mcqRepo.Create(ctx, &model.MCQ{FileID: "other", SegmentID: "00_05"})

	result := store.Delete(ctx, fileID)
	assert.True(t, result.RecordDeleted)
	assert.Equal(t, int64(1), result.MCQsDeleted)
	assert.Len(t, result.FilesDeleted, 4) // metadata + full + segment + upload
	assert.Empty(t, result.Errors)

	record, _ := repo.GetByFileID(ctx, fileID)
	assert.Nil(t, record)

	entries, err := os.ReadDir(cfg.TranscriptDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1718000000099-keep_full.txt", entries[0].Name())
}

func TestDeleteRepeatedIsNoop(t *testing.T) {
	store, repo, _, cfg := newTestStore(t)
	ctx := context.Background()
	fileID := "1718000000000-talk"

	writeArtifacts(t, cfg.TranscriptDir, fileID, "full", "seg")
	repo.Upsert(ctx, &model.Transcript{FileID: fileID})

	first := store.Delete(ctx, fileID)
	assert.True(t, first.RecordDeleted)

	second := store.Delete(ctx, fileID)
	assert.False(t, second.RecordDeleted)
	assert.Empty(t, second.FilesDeleted)
	assert.Empty(t, second.Errors)
}

func TestFullTranscriptDiskFallback(t *testing.T) {
	store, repo, _, cfg := newTestStore(t)
	ctx := context.Background()
	fileID := "1718000000000-talk"

	// 数据库有记录但全文为空，回退磁盘约定文件
	repo.Upsert(ctx, &model.Transcript{FileID: fileID})
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.TranscriptDir, fileID+"_full.txt"), []byte("from disk"), 0644))

	text, err := store.FullTranscript(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, "from disk", text)

	// 数据库里有全文时优先数据库
	repo.Upsert(ctx, &model.Transcript{FileID: fileID, FullTranscript: "from db"})
	text, err = store.FullTranscript(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, "from db", text)

	// 两边都没有
	_, err = store.FullTranscript(ctx, "missing")
	assert.Error(t, err)
}
