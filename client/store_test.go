package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreProgressMonotone(t *testing.T) {
	store := NewStore("", "")
	store.AddFile(&FileEntry{OriginalName: "talk.mp4"})

	ok := store.UpdateFile("talk.mp4", FileUpdate{Progress: intPtr(40)})
	require.True(t, ok)
	entry, _ := store.Get("talk.mp4")
	assert.Equal(t, 40, entry.Progress)

	// 乱序到达的旧进度不能让条目倒退
	store.UpdateFile("talk.mp4", FileUpdate{Progress: intPtr(25)})
	entry, _ = store.Get("talk.mp4")
	assert.Equal(t, 40, entry.Progress)

	store.UpdateFile("talk.mp4", FileUpdate{Progress: intPtr(95)})
	entry, _ = store.Get("talk.mp4")
	assert.Equal(t, 95, entry.Progress)
}

func TestStoreUpdatePartial(t *testing.T) {
	store := NewStore("", "")
	store.AddFile(&FileEntry{OriginalName: "talk.mp4", Status: "started"})

	status := "processing"
	serverName := "1718000000000-talk.mp4"
	store.UpdateFile("talk.mp4", FileUpdate{
		Status:         &status,
		ServerFileName: &serverName,
	})

	entry, ok := store.Get("talk.mp4")
	require.True(t, ok)
	assert.Equal(t, "processing", entry.Status)
	assert.Equal(t, serverName, entry.ServerFileName)
	// 未提供的字段保持原值
	assert.Equal(t, 0, entry.Progress)

	assert.False(t, store.UpdateFile("unknown.mp4", FileUpdate{Status: &status}))
}

func TestStorePersistenceRoundTrip(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state", "uploads.json")

	store := NewStore(statePath, "")
	store.AddFile(&FileEntry{
		OriginalName: "talk.mp4",
		Status:       "processing",
		Progress:     60,
		Content:      []byte("binary payload"),
	})
	store.AddFile(&FileEntry{
		OriginalName: "done.wav",
		FileID:       "1718000000000-done",
		Status:       "completed",
		Progress:     100,
	})

	restored := NewStore(statePath, "")
	entries := restored.All()
	require.Len(t, entries, 2)

	entry, ok := restored.Get("talk.mp4")
	require.True(t, ok)
	assert.Equal(t, 60, entry.Progress)
	assert.Equal(t, "processing", entry.Status)
	// 文件内容不落盘，恢复后是空占位
	assert.Nil(t, entry.Content)

	entry, ok = restored.Get("done.wav")
	require.True(t, ok)
	assert.Equal(t, "1718000000000-done", entry.FileID)
}

func TestStoreRemoveAndProcessing(t *testing.T) {
	store := NewStore("", "")
	store.AddFile(&FileEntry{OriginalName: "a.mp4", Status: "processing"})
	store.AddFile(&FileEntry{OriginalName: "b.mp4", Status: "completed"})
	store.AddFile(&FileEntry{OriginalName: "c.mp4", Status: "failed"})

	processing := store.Processing()
	require.Len(t, processing, 1)
	assert.Equal(t, "a.mp4", processing[0].OriginalName)

	store.RemoveFile("a.mp4")
	_, ok := store.Get("a.mp4")
	assert.False(t, ok)
	assert.Empty(t, store.Processing())
}
