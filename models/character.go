package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 角色档案状态
const (
	CharacterStatusPending = "pending" // 档案任务已创建，生成中
	CharacterStatusReady   = "ready"   // 档案和头像已生成完毕
	CharacterStatusFailed  = "failed"  // 档案生成失败
)

// Character 每个用户最新一份角色档案（memberId 为净化后的存储键段）
type Character struct {
	MemberID        string    `gorm:"primaryKey;type:varchar(128)" json:"memberId"`
	Style           string    `json:"style"`
	Info            string    `gorm:"type:text" json:"info"`
	SeedNum         string    `json:"seedNum"`
	ProfileImageURL string    `json:"profileImageUrl"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// SaveCharacter 按 memberId 覆盖写入（档案固定键，后写覆盖前写）
func SaveCharacter(db *gorm.DB, c *Character) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"style", "info", "seed_num", "profile_image_url", "status", "updated_at"}),
	}).Create(c).Error
}

func GetCharacterByMemberID(db *gorm.DB, memberID string) (*Character, error) {
	var c Character
	if err := db.First(&c, "member_id = ?", memberID).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (Character) TableName() string {
	return "character"
}
