package routers

import (
	"DiaryToWebtoon-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter() *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/api/v1/ai")
	{
		v1.POST("/character", api.ProcessCharacter)
		v1.POST("/webtoon", api.ProcessWebtoon)
		v1.GET("/jobs/:job_id", api.GetJobStatus)
		v1.DELETE("/jobs/:job_id", api.CancelJob)
		v1.GET("/characters/:member_id", api.GetCharacter)
	}
	r.GET("/jobs/:job_id/ws", api.JobProgressWebSocket)
	return r
}
