package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"DiaryToWebtoon-server/config"

	"github.com/hibiken/asynq"
)

const (
	TypeProfileJob = "job:profile"
	TypeWebtoonJob = "job:webtoon"
)

type JobPayload struct {
	JobID string `json:"job_id"`
}

var QueueClient *asynq.Client

// InitQueue 初始化
func InitQueue() {
	QueueClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.Redis.Addr,
		Password: config.AppConfig.Redis.Password,
	})
}

// EnqueueJob 把任务投递到延迟执行队列，typeName 为 job:profile / job:webtoon
func EnqueueJob(typeName, jobID string) error {
	payload, err := json.Marshal(JobPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(typeName, payload,
		asynq.MaxRetry(3),             // 基础设施错误重试 3 次（业务失败不重试）
		asynq.Timeout(40*time.Minute), // 生成加轮询较慢，设置较长超时
		asynq.Retention(24*time.Hour), // 任务结果在 Redis 保留时间
	)

	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	log.Printf("[Queue] Job Enqueued: Type=%s, JobID=%s, TaskID=%s", typeName, jobID, info.ID)
	return nil
}
