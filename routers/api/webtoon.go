package api

import (
	"log"
	"net/http"

	"DiaryToWebtoon-server/models"
	"DiaryToWebtoon-server/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ProcessWebtoon 接收日记文本并触发网漫工作流，复用已提取的档案和种子。
// 与档案接口一样立即返回受理应答。
func ProcessWebtoon(c *gin.Context) {
	var req struct {
		MemberID       string `json:"memberId" binding:"required"`
		Date           string `json:"date" binding:"required"`
		Content        string `json:"content" binding:"required"`
		CharacterInfo  string `json:"characterInfo" binding:"required"`
		SeedNum        int64  `json:"seedNum"`
		CharacterStyle string `json:"characterStyle" binding:"required"`
		APIDomainURL   string `json:"apiDomainUrl" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.Printf("Received /webtoon request for memberId: %s, date: %s", req.MemberID, req.Date)

	job := models.Job{
		ID:       uuid.NewString(),
		MemberID: req.MemberID,
		Type:     models.JobTypeWebtoon,
		Status:   models.JobStatusPending,
		Message:  "网漫任务已创建,正在生成四格场景...",
		Parameters: models.JobParameters{
			Webtoon: &models.WebtoonParams{
				Date:           req.Date,
				Content:        req.Content,
				CharacterInfo:  req.CharacterInfo,
				SeedNum:        req.SeedNum,
				CharacterStyle: req.CharacterStyle,
				CallbackHost:   req.APIDomainURL,
			},
		},
	}
	if err := models.CreateJob(models.GormDB, &job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建网漫任务失败: " + err.Error()})
		return
	}

	if err := service.EnqueueJob(service.TypeWebtoonJob, job.ID); err != nil {
		log.Printf("网漫任务入队失败: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Webtoon processing started",
		"jobId":   job.ID,
	})
}
