package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// chatMessage 聊天消息，Content 为 string 或多段内容（图片）
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ChatClient 语言模型 chat completions 的轻量 HTTP 客户端
type ChatClient struct {
	APIBase string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewChatClient(apiBase, apiKey, model string) *ChatClient {
	return &ChatClient{
		APIBase: apiBase,
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// Complete 发送一次对话请求并取第一条回复文本
func (c *ChatClient) Complete(ctx context.Context, messages []chatMessage) (string, error) {
	req := chatRequest{
		Model:       c.Model,
		Messages:    messages,
		MaxTokens:   1000,
		Temperature: 0.5,
	}
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request failed: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBase+"/v1/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create chat request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat status code: %d, body: %s", resp.StatusCode, truncateBody(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("decode chat response failed: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("chat api error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// truncateBody 避免过长响应体刷屏
func truncateBody(b []byte) string {
	s := string(b)
	if len(s) > 2000 {
		return s[:2000] + "..."
	}
	return s
}
