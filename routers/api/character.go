package api

import (
	"log"
	"net/http"
	"os"
	"path/filepath"

	"DiaryToWebtoon-server/config"
	"DiaryToWebtoon-server/models"
	"DiaryToWebtoon-server/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ProcessCharacter 接收用户照片并触发档案工作流，立即返回受理应答。
// 真正的成败只通过回调可见。
func ProcessCharacter(c *gin.Context) {
	var req struct {
		MemberID       string `form:"memberId" binding:"required"`
		CharacterStyle string `form:"characterStyle" binding:"required"`
		APIDomainURL   string `form:"apiDomainUrl" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := c.FormFile("userImage")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userImage is required: " + err.Error()})
		return
	}

	log.Printf("Received /character request for memberId: %s", req.MemberID)

	// 上传文件先落地，后台任务再读取
	uploadDir := config.AppConfig.Storage.UploadDir
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建上传目录失败: " + err.Error()})
		return
	}
	filePath := filepath.Join(uploadDir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, filePath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存上传文件失败: " + err.Error()})
		return
	}
	log.Printf("File saved to %s", filePath)

	job := models.Job{
		ID:       uuid.NewString(),
		MemberID: req.MemberID,
		Type:     models.JobTypeProfile,
		Status:   models.JobStatusPending,
		Message:  "档案任务已创建,正在生成角色头像...",
		Parameters: models.JobParameters{
			Profile: &models.ProfileParams{
				ImagePath:      filePath,
				CharacterStyle: req.CharacterStyle,
				CallbackHost:   req.APIDomainURL,
			},
		},
	}
	if err := models.CreateJob(models.GormDB, &job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建档案任务失败: " + err.Error()})
		return
	}

	if err := service.EnqueueJob(service.TypeProfileJob, job.ID); err != nil {
		// 入队失败只记日志，受理应答仍然返回
		log.Printf("档案任务入队失败: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile processing started",
		"jobId":   job.ID,
	})
}

// GetCharacter 查询用户最新档案：GET /api/v1/ai/characters/:member_id
func GetCharacter(c *gin.Context) {
	memberID := service.SanitizeMemberID(c.Param("member_id"))
	character, err := models.GetCharacterByMemberID(models.GormDB, memberID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "character not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"character": character})
}
