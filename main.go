package main

import (
	"fmt"

	"DiaryToWebtoon-server/config"
	"DiaryToWebtoon-server/models"
	"DiaryToWebtoon-server/routers"
	"DiaryToWebtoon-server/service"
)

func main() {
	config.InitConfig()
	fmt.Println("Server starting on port", config.AppConfig.Server.Port)
	models.InitDB()
	fmt.Println("Database initialized")

	service.InitQueue()
	fmt.Println("Queue initialized")

	service.InitMinIO()
	fmt.Println("MinIO initialized")

	processor := service.NewProcessor(models.GormDB)
	processor.StartProcessor(config.AppConfig.Pipeline.WorkerConcurrency)

	r := routers.InitRouter()
	r.Run(config.AppConfig.Server.Port)
}
