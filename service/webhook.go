package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// CharacterResult 档案任务回调负载
type CharacterResult struct {
	MemberID                 string `json:"memberId"`
	CharacterInfo            string `json:"characterInfo"`
	CharacterStyle           string `json:"characterStyle"`
	SeedNum                  string `json:"seedNum"`
	CharacterProfileImageURL string `json:"characterProfileImageUrl"`
}

// WebtoonImage 成功场景的 (脚本, 图片) 对
type WebtoonImage struct {
	Scenario string `json:"scenario"`
	Image    string `json:"image"`
}

// WebtoonResult 网漫任务回调负载
type WebtoonResult struct {
	MemberID         string         `json:"memberId"`
	Date             string         `json:"date"`
	WebtoonFolderURL string         `json:"webtoonFolderUrl"`
	WebtoonImages    []WebtoonImage `json:"webtoonImages"`
}

// WebhookNotifier 任务完成后向调用方回调，发后不管：只记录状态码，不重试
type WebhookNotifier struct {
	Client *http.Client
}

func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{Client: &http.Client{Timeout: 30 * time.Second}}
}

// NotifyCharacter POST http://<host>/api/v1/webhook/ai/character
func (n *WebhookNotifier) NotifyCharacter(callbackHost string, result *CharacterResult) {
	url := fmt.Sprintf("http://%s/api/v1/webhook/ai/character", callbackHost)
	n.post(url, result)
}

// NotifyWebtoon POST http://<host>/api/v1/webhook/ai/webtoon
func (n *WebhookNotifier) NotifyWebtoon(callbackHost string, result *WebtoonResult) {
	url := fmt.Sprintf("http://%s/api/v1/webhook/ai/webtoon", callbackHost)
	n.post(url, result)
}

func (n *WebhookNotifier) post(url string, payload interface{}) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		log.Printf("序列化回调负载失败: %v", err)
		return
	}

	resp, err := n.Client.Post(url, "application/json", bytes.NewBuffer(jsonBody))
	if err != nil {
		log.Printf("回调请求失败 %s: %v", url, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		log.Printf("回调成功: %s", url)
	} else {
		log.Printf("回调失败 %s, status code: %d", url, resp.StatusCode)
	}
}
