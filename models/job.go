package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// 任务状态（在系统中统一使用这些状态）
const (
	// pending: 任务已就绪，等待执行器取走执行
	JobStatusPending = "pending"
	// processing: 任务正在执行中
	JobStatusProcessing = "processing"
	JobStatusSuccess    = "finished"
	JobStatusFailed     = "failed"
	// cancelled: 任务被用户/系统取消（取消正在轮询的生成任务）
	JobStatusCancelled = "cancelled"

	// 两种核心任务类型
	JobTypeProfile = "create_profile" // 用户照片 -> 角色档案 + 头像
	JobTypeWebtoon = "create_webtoon" // 日记 -> 四格网漫
)

type Job struct {
	ID         string        `gorm:"primaryKey;type:varchar(64)" json:"id"`
	MemberID   string        `gorm:"index;type:varchar(128)" json:"memberId"`
	Type       string        `json:"type"`
	Status     string        `json:"status"`
	Message    string        `json:"message"`
	Parameters JobParameters `gorm:"type:json" json:"parameters"`
	Result     JobResult     `gorm:"type:json" json:"result"`
	Error      string        `json:"error"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

type JobParameters struct {
	Profile *ProfileParams `json:"profile,omitempty"`
	Webtoon *WebtoonParams `json:"webtoon,omitempty"`
}

// ProfileParams 角色档案任务参数（上传文件已落到本地，仅记路径）
type ProfileParams struct {
	ImagePath      string `json:"image_path"`
	CharacterStyle string `json:"character_style"`
	CallbackHost   string `json:"callback_host"`
}

// WebtoonParams 网漫任务参数，复用已生成档案和种子
type WebtoonParams struct {
	Date           string `json:"date"`
	Content        string `json:"content"`
	CharacterInfo  string `json:"character_info"`
	SeedNum        int64  `json:"seed_num"`
	CharacterStyle string `json:"character_style"`
	CallbackHost   string `json:"callback_host"`
}

// JobResult 任务完成后的资源定位信息
type JobResult struct {
	CharacterInfo string         `json:"character_info,omitempty"`
	SeedNum       string         `json:"seed_num,omitempty"`
	ProfileURL    string         `json:"profile_url,omitempty"`
	FolderURL     string         `json:"folder_url,omitempty"`
	Scenes        []SceneOutcome `json:"scenes,omitempty"`
}

// SceneOutcome 单格场景的显式结果（成功/失败都保留，不靠缺位表达）
type SceneOutcome struct {
	Index    int    `json:"index"`
	Scenario string `json:"scenario"`
	Status   string `json:"status"` // finished / failed
	ImageURL string `json:"image_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// 实现 driver.Valuer 接口: Go Struct -> JSON String (存入数据库)
func (p JobParameters) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// 实现 sql.Scanner 接口: JSON String -> Go Struct (从数据库读取)
func (p *JobParameters) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New(fmt.Sprint("Failed to unmarshal JSONB value:", value))
	}
	return json.Unmarshal(bytes, p)
}

// 实现 driver.Valuer 接口
func (r JobResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// 实现 sql.Scanner 接口
func (r *JobResult) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New(fmt.Sprint("Failed to unmarshal JSONB value:", value))
	}
	return json.Unmarshal(bytes, r)
}

func (j *Job) UpdateStatus(db *gorm.DB, status string, result *JobResult, errMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if result != nil {
		jsonBytes, err := json.Marshal(result)
		if err != nil {
			log.Printf("序列化任务结果失败: %v", err)
		} else {
			updates["result"] = jsonBytes
		}
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	return db.Model(j).Updates(updates).Error
}

func GetJobByID(db *gorm.DB, jobID string) (*Job, error) {
	var job Job
	if err := db.First(&job, "id = ?", jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func CreateJob(db *gorm.DB, j *Job) error {
	now := time.Now()
	j.CreatedAt = now
	j.UpdatedAt = now
	return db.Create(j).Error
}

func (Job) TableName() string {
	return "job"
}
