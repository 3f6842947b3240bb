package service

import (
	"context"
	"encoding/base64"
)

// 特征提取的系统提示词（只提取稳定特征，排除衣着/表情/背景等易变信息）
const extractSystemPrompt = "You are responsible for extracting features from the user's photos.\n" +
	"The data you extracted is used to create a 2D character profile picture through the RoLA model.\n" +
	"Please extract the user's image and make the data with JSON format.\n" +
	"data format: gender, age(ex: 20s, 30s, 40s, ...), hair, glasses(if yes -> {shape, color} else: don't write ), eyes, mouth, skin-tone" +
	"In particular, extract detailed data on hairstyles(length, style, color, bang)\n" +
	"#Don't extract information that changes every time(ex: clothes, emotion, back_ground, ect.)\n" +
	"#Don't extract information that unknown"

// FeatureExtractor 用视觉模型从用户照片提取角色特征
type FeatureExtractor struct {
	chat *ChatClient
}

func NewFeatureExtractor(chat *ChatClient) *FeatureExtractor {
	return &FeatureExtractor{chat: chat}
}

// Extract 上传图片做单轮视觉问答，原样返回模型文本（不做 JSON 校验）。
// memberID 原样回传，调用方用它做串线校验。
func (e *FeatureExtractor) Extract(ctx context.Context, memberID string, imageBytes []byte) (string, string, error) {
	encoded := base64.StdEncoding.EncodeToString(imageBytes)

	messages := []chatMessage{
		{Role: "system", Content: extractSystemPrompt},
		{Role: "user", Content: []chatContentPart{
			{
				Type:     "image_url",
				ImageURL: &chatImageURL{URL: "data:image/webp;base64," + encoded},
			},
		}},
	}

	content, err := e.chat.Complete(ctx, messages)
	if err != nil {
		return memberID, "", err
	}
	return memberID, content, nil
}
