package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"

	"EchoQuiz/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUploadTestHandler(t *testing.T) (*APIHandler, *config.Config) {
	t.Helper()
	cfg := &config.Config{UploadDir: t.TempDir()}
	// 校验失败的路径不会触达任务执行器和存储层
	return NewAPIHandler(cfg, nil, nil, nil, nil, nil, nil), cfg
}

// buildUpload 构造一个 multipart 上传请求
func buildUpload(t *testing.T, fieldName, fileName, contentType string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+fieldName+`"; filename="`+fileName+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)

	require.NoError(t, writer.WriteField("channelId", "test-channel"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transcription/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func assertUploadDirEmpty(t *testing.T, cfg *config.Config) {
	t.Helper()
	entries, err := os.ReadDir(cfg.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "校验失败不应产生任何落盘文件")
}

func TestUploadRejectsOversizeBody(t *testing.T) {
	handler, cfg := newUploadTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/transcription/upload", bytes.NewReader(nil))
	req.ContentLength = maxUploadSize + 1

	rec := httptest.NewRecorder()
	handler.UploadHandler(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assertUploadDirEmpty(t, cfg)
}

func TestUploadRejectsMissingFile(t *testing.T) {
	handler, cfg := newUploadTestHandler(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("channelId", "test-channel"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transcription/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	handler.UploadHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "No file uploaded", resp["error"])
	assertUploadDirEmpty(t, cfg)
}

func TestUploadRejectsWrongFieldName(t *testing.T) {
	handler, cfg := newUploadTestHandler(t)

	req := buildUpload(t, "file", "talk.mp3", "audio/mpeg", []byte("data"))
	rec := httptest.NewRecorder()
	handler.UploadHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertUploadDirEmpty(t, cfg)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	handler, cfg := newUploadTestHandler(t)

	cases := []struct {
		name        string
		fileName    string
		contentType string
	}{
		{"文本文件", "notes.txt", "text/plain"},
		{"图片", "cover.png", "image/png"},
		{"PDF", "slides.pdf", "application/pdf"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := buildUpload(t, "videoFile", tc.fileName, tc.contentType, []byte("data"))
			rec := httptest.NewRecorder()
			handler.UploadHandler(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp["error"], "Invalid file type")
		})
	}
	assertUploadDirEmpty(t, cfg)
}

func TestUploadRejectsGarbageBody(t *testing.T) {
	handler, cfg := newUploadTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/transcription/upload",
		bytes.NewReader([]byte("not multipart at all")))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=nope")

	rec := httptest.NewRecorder()
	handler.UploadHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertUploadDirEmpty(t, cfg)
}
