package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractReturnsSameMemberID(t *testing.T) {
	imageBytes := []byte{0x52, 0x49, 0x46, 0x46, 0x01, 0x02}

	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"gender\":\"male\",\"age\":\"20s\"}"}}]}`)
	}))
	defer srv.Close()

	e := NewFeatureExtractor(NewChatClient(srv.URL, "test-key", "gpt-4o-mini"))
	memberID, info, err := e.Extract(context.Background(), "u1", imageBytes)

	require.NoError(t, err)
	assert.Equal(t, "u1", memberID)
	// 模型输出原样返回，不做 JSON 校验
	assert.Equal(t, `{"gender":"male","age":"20s"}`, info)

	// 单轮请求：system 提示 + base64 图片
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "gpt-4o-mini", captured.Model)

	raw, err := json.Marshal(captured.Messages[1].Content)
	require.NoError(t, err)
	var parts []chatContentPart
	require.NoError(t, json.Unmarshal(raw, &parts))
	require.Len(t, parts, 1)
	require.NotNil(t, parts[0].ImageURL)
	assert.True(t, strings.HasPrefix(parts[0].ImageURL.URL, "data:image/webp;base64,"))
	encoded := strings.TrimPrefix(parts[0].ImageURL.URL, "data:image/webp;base64,")
	assert.Equal(t, base64.StdEncoding.EncodeToString(imageBytes), encoded)
}

func TestExtractPropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewFeatureExtractor(NewChatClient(srv.URL, "test-key", "gpt-4o-mini"))
	memberID, _, err := e.Extract(context.Background(), "u1", []byte("img"))

	require.Error(t, err)
	assert.Equal(t, "u1", memberID)
	assert.Contains(t, err.Error(), "429")
}
