package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"DiaryToWebtoon-server/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeMemberID(t *testing.T) {
	assert.Equal(t, "abc123", SanitizeMemberID("abc123"))
	assert.Equal(t, "abc123", SanitizeMemberID("ab c!123"))
	assert.Equal(t, "user_1", SanitizeMemberID("user_1"))
	assert.Equal(t, "", SanitizeMemberID("../.."))
	assert.Equal(t, "etcpasswd", SanitizeMemberID("/etc/passwd"))
	assert.Equal(t, "", SanitizeMemberID(""))
}

func TestObjectNames(t *testing.T) {
	// 档案键固定文件名，与原始文件名无关
	assert.Equal(t, "webtoon-ai/abc123/temp_profile.webp", ProfileObjectName("webtoon-ai", "abc123"))

	assert.Equal(t, "webtoon-ai/abc123/2024-08-15/1.webp",
		WebtoonObjectName("webtoon-ai", "abc123", "2024-08-15", "1.webp"))

	assert.Equal(t, "webtoon-ai/abc123/2024-08-15/",
		WebtoonFolderPrefix("webtoon-ai", "abc123", "2024-08-15"))
}

func TestPublicObjectURL(t *testing.T) {
	config.AppConfig = &config.Config{}
	config.AppConfig.MinIO.Endpoint = "127.0.0.1:9000"
	config.AppConfig.MinIO.Bucket = "webtoon"

	assert.Equal(t, "http://127.0.0.1:9000/webtoon/webtoon-ai/abc123/temp_profile.webp",
		PublicObjectURL("webtoon-ai/abc123/temp_profile.webp"))

	config.AppConfig.MinIO.UseSSL = true
	config.AppConfig.MinIO.Domain = "cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/webtoon/webtoon-ai/abc123/temp_profile.webp",
		PublicObjectURL("webtoon-ai/abc123/temp_profile.webp"))
}

func TestDownload(t *testing.T) {
	payload := []byte("webp-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	relay := NewAssetRelay(t.TempDir(), "webtoon-ai")
	localPath, err := relay.Download(context.Background(), srv.URL, "temp_profile")

	require.NoError(t, err)
	assert.Equal(t, "temp_profile.webp", filepath.Base(localPath))
	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestDownloadSanitizesNameHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	relay := NewAssetRelay(t.TempDir(), "webtoon-ai")
	localPath, err := relay.Download(context.Background(), srv.URL, "../evil name")

	require.NoError(t, err)
	assert.Equal(t, "evilname.webp", filepath.Base(localPath))
}

func TestDownloadNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	relay := NewAssetRelay(t.TempDir(), "webtoon-ai")
	_, err := relay.Download(context.Background(), srv.URL, "temp_profile")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "download status: 404")
}

func TestPublishRejectsUnsanitizableMember(t *testing.T) {
	relay := NewAssetRelay(t.TempDir(), "webtoon-ai")
	// 净化后为空的 memberId 直接拒绝，不会触碰对象存储
	assert.Empty(t, relay.Publish("whatever.webp", "!!!", "", true))
}

func TestPublishMissingLocalFile(t *testing.T) {
	relay := NewAssetRelay(t.TempDir(), "webtoon-ai")
	assert.Empty(t, relay.Publish("/nonexistent/file.webp", "abc123", "", true))
}

func TestPublishRequiresDateForWebtoon(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "1.webp")
	require.NoError(t, os.WriteFile(localPath, []byte("x"), 0o644))

	relay := NewAssetRelay(dir, "webtoon-ai")
	// 非档案且没有日期参数，拒绝上传
	assert.Empty(t, relay.Publish(localPath, "abc123", "", false))
	// 本地文件不应被删除（未上传成功）
	_, err := os.Stat(localPath)
	assert.NoError(t, err)
}
