package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SceneStatusPending  = "pending"
	SceneStatusFinished = "finished"
	SceneStatusFailed   = "failed"
)

// Scene 网漫任务中单格场景的处理记录
type Scene struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	JobID     string    `gorm:"index;type:varchar(64)" json:"jobId"`
	Index     int       `gorm:"column:scene_index" json:"index"`
	Scenario  string    `gorm:"type:text" json:"scenario"`
	Status    string    `json:"status"`
	ImageURL  string    `json:"imageUrl"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func BatchCreateScenes(db *gorm.DB, scenes []Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	return db.Create(&scenes).Error
}

func GetScenesByJobID(db *gorm.DB, jobID string) ([]Scene, error) {
	var res []Scene
	if err := db.Where("job_id = ?", jobID).Order("scene_index ASC").Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (Scene) TableName() string {
	return "scene"
}
