package service

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// 一篇日记固定拆成四格场景
const SceneCount = 4

// ScenePlaceholder 某一轮生成失败时占位的固定文本
const ScenePlaceholder = "Error generating scene."

// 场景生成的系统提示词：描述画面而非复述内容，且不允许出现他人
const scenarioSystemPrompt = "You are responsible for making the user's diary into a FOUR-SCENE scenario.\n" +
	"I will draw a cartoon with the scene information you made.\n" +
	"Use a way of describing the scene, not the content.\n" +
	"Describe the background and scene simply.\n" +
	"#Be careful not to let other people come out when you describe the situation.(Don't use 'they', 'friends', etc)\n" +
	"#Not an incidental depiction, but a scene\n" +
	"DON'T USE MARKDOWN" +
	"[user's diary]\n" +
	"\t%s" +
	"[output]\n" +
	"\tscene: \n" +
	"\tbackground: \n"

// ScenarioWriter 把日记改写成四格场景脚本，逐轮续写保证前后连贯
type ScenarioWriter struct {
	chat *ChatClient
}

func NewScenarioWriter(chat *ChatClient) *ScenarioWriter {
	return &ScenarioWriter{chat: chat}
}

// Write 以单条不断增长的对话生成四个场景。
// 某一轮失败则该格及其后全部填占位文本并停止继续调用（尽力而为，不中断任务）。
// 返回序列长度恒为 4。
func (w *ScenarioWriter) Write(ctx context.Context, memberID, diaryText string) (string, []string) {
	scenario := make([]string, 0, SceneCount)
	messages := []chatMessage{
		{Role: "system", Content: fmt.Sprintf(scenarioSystemPrompt, diaryText)},
		{Role: "user", Content: "make scene 1"},
	}

	for scene := 1; scene <= SceneCount; scene++ {
		content, err := w.chat.Complete(ctx, messages)
		if err != nil {
			log.Printf("场景 %d 生成失败: %v", scene, err)
			// 失败后不再续写，剩余格子全部占位
			for len(scenario) < SceneCount {
				scenario = append(scenario, ScenePlaceholder)
			}
			break
		}
		text := strings.TrimSpace(content)
		scenario = append(scenario, text)
		messages = append(messages, chatMessage{Role: "assistant", Content: text})
		if scene < SceneCount {
			messages = append(messages, chatMessage{Role: "user", Content: fmt.Sprintf("make scene %d", scene+1)})
		}
	}

	return memberID, scenario
}
