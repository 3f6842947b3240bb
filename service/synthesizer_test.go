package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"DiaryToWebtoon-server/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStyles() *StyleRegistry {
	return NewStyleRegistry(map[string]config.StyleModel{
		"romance": {Model: "acme/romance", Version: "v-romance"},
	})
}

// fakePredictionServer 模拟异步生成后端：前 running 次轮询返回 running，之后返回 final
func fakePredictionServer(t *testing.T, running int, final Prediction) (*httptest.Server, *int, *map[string]interface{}) {
	t.Helper()
	polls := 0
	var submittedInput map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/predictions":
			var body struct {
				Version string                 `json:"version"`
				Input   map[string]interface{} `json:"input"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			submittedInput = body.Input
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":"p1","status":"starting"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/predictions/p1":
			polls++
			if polls <= running {
				fmt.Fprint(w, `{"id":"p1","status":"running"}`)
				return
			}
			json.NewEncoder(w).Encode(final)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &polls, &submittedInput
}

func newTestSynthesizer(base string) *ImageSynthesizer {
	return NewImageSynthesizer(base, "test-token", testStyles(),
		5*time.Millisecond, time.Second, time.Millisecond)
}

func TestCreateProfilePollsUntilTerminal(t *testing.T) {
	final := Prediction{
		ID:     "p1",
		Status: PredictionSucceeded,
		Logs:   "Random seed set\nUsing seed: 12345\ndone",
		Output: json.RawMessage(`["https://gen/x.webp"]`),
	}
	srv, polls, input := fakePredictionServer(t, 3, final)

	s := newTestSynthesizer(srv.URL)
	seed, imageURL, err := s.CreateProfile(context.Background(), "romance", "{traits}")

	require.NoError(t, err)
	assert.Equal(t, "12345", seed)
	assert.Equal(t, "https://gen/x.webp", imageURL)
	// running N 次后到终态，恰好 N+1 次状态查询
	assert.Equal(t, 4, *polls)

	// 固定基线参数 + 叠加的提示词
	assert.Equal(t, "dev", (*input)["model"])
	assert.Equal(t, "1:1", (*input)["aspect_ratio"])
	assert.InDelta(t, 3.5, (*input)["guidance_scale"].(float64), 0.001)
	assert.InDelta(t, 28, (*input)["num_inference_steps"].(float64), 0.001)
	assert.Contains(t, (*input)["prompt"], "{traits}")
	assert.Contains(t, (*input)["prompt"], profilePromptSuffix)
	_, hasSeed := (*input)["seed"]
	assert.False(t, hasSeed, "档案生成不应指定 seed")
}

func TestCreateProfileMissingSeedAndOutput(t *testing.T) {
	final := Prediction{ID: "p1", Status: PredictionSucceeded}
	srv, _, _ := fakePredictionServer(t, 0, final)

	s := newTestSynthesizer(srv.URL)
	seed, imageURL, err := s.CreateProfile(context.Background(), "romance", "info")

	// 缺 seed / 缺输出只记日志返回空值，不报错，由调用方中止
	require.NoError(t, err)
	assert.Empty(t, seed)
	assert.Empty(t, imageURL)
}

func TestCreateProfileFailedPrediction(t *testing.T) {
	final := Prediction{ID: "p1", Status: PredictionFailed, Error: "NSFW content detected"}
	srv, _, _ := fakePredictionServer(t, 1, final)

	s := newTestSynthesizer(srv.URL)
	_, _, err := s.CreateProfile(context.Background(), "romance", "info")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestCreateProfileUnknownStyle(t *testing.T) {
	s := newTestSynthesizer("http://127.0.0.1:0")
	_, _, err := s.CreateProfile(context.Background(), "cyberpunk", "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown character style")
}

func TestPollTimeout(t *testing.T) {
	// 永远 running
	srv, _, _ := fakePredictionServer(t, 1<<30, Prediction{})

	s := newTestSynthesizer(srv.URL)
	s.PollTimeout = 30 * time.Millisecond
	_, _, err := s.CreateProfile(context.Background(), "romance", "info")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "polling timeout")
}

func TestPollCancel(t *testing.T) {
	srv, _, _ := fakePredictionServer(t, 1<<30, Prediction{})

	s := newTestSynthesizer(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, _, err := s.CreateProfile(ctx, "romance", "info")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
}

func TestCreateWebtoonForwardsSeedAndOutputList(t *testing.T) {
	final := Prediction{
		ID:     "p1",
		Status: PredictionSucceeded,
		Output: json.RawMessage(`["https://gen/a.webp","https://gen/b.webp"]`),
	}
	srv, _, input := fakePredictionServer(t, 0, final)

	s := newTestSynthesizer(srv.URL)
	urls, err := s.CreateWebtoon(context.Background(), "romance", "{traits}", 777, "scene: a walk\nbackground: park")

	require.NoError(t, err)
	// 网漫转发全部输出
	assert.Equal(t, []string{"https://gen/a.webp", "https://gen/b.webp"}, urls)
	assert.InDelta(t, 777, (*input)["seed"].(float64), 0.001)
	assert.Contains(t, (*input)["prompt"], "{traits}")
	assert.Contains(t, (*input)["prompt"], "scene: a walk")
}

func TestParseSeed(t *testing.T) {
	assert.Equal(t, "12345", ParseSeed("Using seed: 12345"))
	assert.Equal(t, "987", ParseSeed("prefix\nUsing seed: 987\nsuffix"))
	assert.Equal(t, "", ParseSeed("no seed here"))
	assert.Equal(t, "", ParseSeed(""))
}

func TestOutputList(t *testing.T) {
	p := &Prediction{Output: json.RawMessage(`["a","b"]`)}
	assert.Equal(t, []string{"a", "b"}, p.OutputList())

	p = &Prediction{Output: json.RawMessage(`"single"`)}
	assert.Equal(t, []string{"single"}, p.OutputList())

	p = &Prediction{Output: json.RawMessage(`null`)}
	assert.Nil(t, p.OutputList())

	p = &Prediction{}
	assert.Nil(t, p.OutputList())
}
