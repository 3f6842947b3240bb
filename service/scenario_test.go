package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatServer 造一个 chat completions 假后端
// respond(n) 决定第 n 次调用（从 1 开始）的行为
func fakeChatServer(t *testing.T, respond func(n int, req chatRequest) (string, int)) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		content, status := respond(calls, req)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestScenarioWriterFourScenes(t *testing.T) {
	srv, calls := fakeChatServer(t, func(n int, req chatRequest) (string, int) {
		return fmt.Sprintf("scene %d description", n), http.StatusOK
	})

	writer := NewScenarioWriter(NewChatClient(srv.URL, "test-key", "gpt-4o-mini"))
	memberID, scenario := writer.Write(context.Background(), "u1", "오늘은 좋은 하루였다")

	assert.Equal(t, "u1", memberID)
	require.Len(t, scenario, SceneCount)
	for i, scene := range scenario {
		assert.Equal(t, fmt.Sprintf("scene %d description", i+1), scene)
	}
	assert.Equal(t, SceneCount, *calls)
}

func TestScenarioWriterConversationGrows(t *testing.T) {
	var lastMessageCount int
	srv, _ := fakeChatServer(t, func(n int, req chatRequest) (string, int) {
		lastMessageCount = len(req.Messages)
		return "scene", http.StatusOK
	})

	writer := NewScenarioWriter(NewChatClient(srv.URL, "test-key", "gpt-4o-mini"))
	writer.Write(context.Background(), "u1", "diary")

	// system + scene1请求 + 3 × (assistant回复 + 下一格请求)
	assert.Equal(t, 2+3*2, lastMessageCount)
}

func TestScenarioWriterFailureShortCircuits(t *testing.T) {
	srv, calls := fakeChatServer(t, func(n int, req chatRequest) (string, int) {
		if n == 3 {
			return "", http.StatusInternalServerError
		}
		return fmt.Sprintf("scene %d", n), http.StatusOK
	})

	writer := NewScenarioWriter(NewChatClient(srv.URL, "test-key", "gpt-4o-mini"))
	_, scenario := writer.Write(context.Background(), "u1", "diary")

	// 失败后不再调用，序列长度仍为 4，失败格及其后为占位文本
	assert.Equal(t, 3, *calls)
	require.Len(t, scenario, SceneCount)
	assert.Equal(t, "scene 1", scenario[0])
	assert.Equal(t, "scene 2", scenario[1])
	assert.Equal(t, ScenePlaceholder, scenario[2])
	assert.Equal(t, ScenePlaceholder, scenario[3])
}

func TestScenarioWriterFirstTurnFailure(t *testing.T) {
	srv, calls := fakeChatServer(t, func(n int, req chatRequest) (string, int) {
		return "", http.StatusBadGateway
	})

	writer := NewScenarioWriter(NewChatClient(srv.URL, "test-key", "gpt-4o-mini"))
	_, scenario := writer.Write(context.Background(), "u1", "diary")

	assert.Equal(t, 1, *calls)
	require.Len(t, scenario, SceneCount)
	for _, scene := range scenario {
		assert.Equal(t, ScenePlaceholder, scene)
	}
}
