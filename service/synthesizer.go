package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/time/rate"
)

// 预测任务的终态
const (
	PredictionSucceeded = "succeeded"
	PredictionFailed    = "failed"
	PredictionCanceled  = "canceled"
)

// 头像生成附加提示：正面上半身
const profilePromptSuffix = "a character of the upper body facing the front."

// 网漫场景生成提示模板
const webtoonPromptTemplate = "Make a cartoon scene using character information and scene information.\n" +
	"Don't draw anyone other than the main character.\n" +
	"[character_info]\n" +
	"%s\n" +
	"[scene]\n" +
	"%s\n"

var seedPattern = regexp.MustCompile(`Using seed: (\d+)`)

// Prediction 异步生成后端的任务快照
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Logs   string          `json:"logs"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// IsTerminal 是否已到终态
func (p *Prediction) IsTerminal() bool {
	switch p.Status {
	case PredictionSucceeded, PredictionFailed, PredictionCanceled:
		return true
	}
	return false
}

// OutputList 输出统一转成 URL 列表（兼容单个字符串和列表两种返回）
func (p *Prediction) OutputList() []string {
	if len(p.Output) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(p.Output, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}

// ImageSynthesizer 向异步图像生成后端提交任务并轮询到终态
type ImageSynthesizer struct {
	APIBase      string
	APIToken     string
	Styles       *StyleRegistry
	PollInterval time.Duration
	PollTimeout  time.Duration
	Client       *http.Client

	// 提交限流，多个并发场景共用
	limiter *rate.Limiter
}

func NewImageSynthesizer(apiBase, apiToken string, styles *StyleRegistry, pollInterval, pollTimeout, submitInterval time.Duration) *ImageSynthesizer {
	return &ImageSynthesizer{
		APIBase:      apiBase,
		APIToken:     apiToken,
		Styles:       styles,
		PollInterval: pollInterval,
		PollTimeout:  pollTimeout,
		Client:       &http.Client{Timeout: 30 * time.Second},
		limiter:      rate.NewLimiter(rate.Every(submitInterval), 2),
	}
}

// baselineInput 生成任务固定基线参数，叠加 prompt
func baselineInput(prompt string) map[string]interface{} {
	return map[string]interface{}{
		"model":               "dev",
		"lora_scale":          1,
		"num_outputs":         1,
		"aspect_ratio":        "1:1",
		"guidance_scale":      3.5,
		"output_quality":      70,
		"prompt_strength":     0.8,
		"extra_lora_scale":    1,
		"num_inference_steps": 28,
		"prompt":              prompt,
	}
}

// CreateProfile 生成角色头像。成功时返回 (seed, 图片URL)；
// 日志里没有 seed 或没有输出时只记错误并返回空值，由调用方决定是否中止。
func (s *ImageSynthesizer) CreateProfile(ctx context.Context, styleTag, characterInfo string) (string, string, error) {
	style, err := s.Styles.Resolve(styleTag)
	if err != nil {
		return "", "", err
	}

	input := baselineInput(characterInfo + "\n" + profilePromptSuffix)
	prediction, err := s.run(ctx, style.Version, input)
	if err != nil {
		return "", "", err
	}

	seed := ParseSeed(prediction.Logs)
	if seed == "" {
		log.Printf("No seed number found in the logs.")
	}

	output := prediction.OutputList()
	if len(output) == 0 {
		log.Printf("No output available.")
		return seed, "", nil
	}
	return seed, output[0], nil
}

// CreateWebtoon 用共享 seed 生成单格场景图，返回全部输出 URL
func (s *ImageSynthesizer) CreateWebtoon(ctx context.Context, styleTag, characterInfo string, seedNum int64, sceneInfo string) ([]string, error) {
	style, err := s.Styles.Resolve(styleTag)
	if err != nil {
		return nil, err
	}

	input := baselineInput(fmt.Sprintf(webtoonPromptTemplate, characterInfo, sceneInfo))
	input["seed"] = seedNum

	prediction, err := s.run(ctx, style.Version, input)
	if err != nil {
		return nil, err
	}
	return prediction.OutputList(), nil
}

// run 提交预测任务并阻塞轮询到终态
func (s *ImageSynthesizer) run(ctx context.Context, version string, input map[string]interface{}) (*Prediction, error) {
	// 按限流间隔排队提交
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait canceled: %w", err)
	}

	id, err := s.submit(ctx, version, input)
	if err != nil {
		return nil, err
	}
	log.Printf("生成任务已提交，Prediction ID: %s，开始轮询结果...", id)
	return s.pollPrediction(ctx, id)
}

// submit 发送 POST 请求创建预测任务，返回 prediction id
func (s *ImageSynthesizer) submit(ctx context.Context, version string, input map[string]interface{}) (string, error) {
	reqBody := map[string]interface{}{
		"version": version,
		"input":   input,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal prediction request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.APIBase+"/v1/predictions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create prediction request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+s.APIToken)

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("prediction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("prediction status code: %d, body: %s", resp.StatusCode, truncateBody(body))
	}

	var prediction Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return "", fmt.Errorf("decode prediction response failed: %w", err)
	}
	if prediction.ID == "" {
		return "", fmt.Errorf("prediction response missing 'id'")
	}
	return prediction.ID, nil
}

// pollPrediction 轮询 GET /v1/predictions/{id} 直到终态，超时或取消则报错
func (s *ImageSynthesizer) pollPrediction(ctx context.Context, id string) (*Prediction, error) {
	predictionURL := fmt.Sprintf("%s/v1/predictions/%s", s.APIBase, id)

	timeout := time.After(s.PollTimeout)
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return nil, fmt.Errorf("polling timeout")
		case <-ctx.Done():
			return nil, fmt.Errorf("polling canceled: %v", ctx.Err())
		case <-ticker.C:
			prediction, err := s.getPrediction(ctx, predictionURL)
			if err != nil {
				// 网络抖动继续重试，取消由上面的 ctx.Done() 捕获
				log.Printf("轮询网络错误(重试中): %v", err)
				continue
			}

			if !prediction.IsTerminal() {
				continue
			}
			if prediction.Status == PredictionSucceeded {
				return prediction, nil
			}
			return nil, fmt.Errorf("prediction %s: %s", prediction.Status, prediction.Error)
		}
	}
}

func (s *ImageSynthesizer) getPrediction(ctx context.Context, url string) (*Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create poll request failed: %w", err)
	}
	req.Header.Set("Authorization", "Token "+s.APIToken)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read poll response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll status code: %d, body: %s", resp.StatusCode, truncateBody(body))
	}

	var prediction Prediction
	if err := json.Unmarshal(body, &prediction); err != nil {
		return nil, fmt.Errorf("decode poll response failed: %w", err)
	}
	return &prediction, nil
}

// ParseSeed 从任务日志中解析 "Using seed: <digits>"，没有则返回空串
func ParseSeed(logs string) string {
	match := seedPattern.FindStringSubmatch(logs)
	if match == nil {
		return ""
	}
	return match[1]
}
