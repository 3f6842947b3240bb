package api

import (
	"net/http"
	"time"

	"DiaryToWebtoon-server/models"
	"DiaryToWebtoon-server/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 查询任务状态：GET /api/v1/ai/jobs/:job_id
func GetJobStatus(c *gin.Context) {
	jobID := c.Param("job_id")
	job, err := models.GetJobByID(models.GormDB, jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found: " + err.Error()})
		return
	}

	// 网漫任务附带逐格记录
	if job.Type == models.JobTypeWebtoon {
		scenes, err := models.GetScenesByJobID(models.GormDB, jobID)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"job": job, "scenes": scenes})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// 取消任务：DELETE /api/v1/ai/jobs/:job_id（取消正在轮询的生成任务）
func CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if !service.CancelPollJob(jobID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no running job to cancel"})
		return
	}

	job, err := models.GetJobByID(models.GormDB, jobID)
	if err == nil {
		_ = job.UpdateStatus(models.GormDB, models.JobStatusCancelled, nil, "cancelled by user")
	}
	c.JSON(http.StatusOK, gin.H{"jobId": jobID, "message": "任务已取消"})
}

// 任务进度 WebSocket 推送（以数据库为来源：先读取 DB，然后循环轮询 DB 并推送）
func JobProgressWebSocket(c *gin.Context) {
	jobID := c.Param("job_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "WebSocket升级失败"})
		return
	}
	defer conn.Close()

	j, err := models.GetJobByID(models.GormDB, jobID)
	if err != nil {
		conn.WriteJSON(map[string]interface{}{"error": "job not found: " + err.Error()})
		return
	}
	_ = conn.WriteJSON(j)

	// 轮询 DB 并推送变化（每秒一次直到终态）
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	prevStatus := j.Status

	for range ticker.C {
		cur, err := models.GetJobByID(models.GormDB, jobID)
		if err != nil {
			continue
		}

		if cur.Status != prevStatus {
			if err := conn.WriteJSON(cur); err != nil {
				break
			}
			prevStatus = cur.Status
		}

		if cur.Status == models.JobStatusSuccess || cur.Status == models.JobStatusFailed || cur.Status == models.JobStatusCancelled {
			// 发送最终状态后关闭连接
			_ = conn.WriteJSON(cur)
			break
		}
	}
}
