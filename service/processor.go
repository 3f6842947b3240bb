package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"DiaryToWebtoon-server/config"
	"DiaryToWebtoon-server/models"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// poll 取消注册表（jobID -> cancelFunc），带 TTL 防止残留条目泄漏
var pollCancelRegistry = gocache.New(40*time.Minute, 10*time.Minute)

// RegisterPollCancel 注册轮询的 cancelFunc（任务开始执行时调用）
func RegisterPollCancel(jobID string, cancel context.CancelFunc) {
	pollCancelRegistry.Set(jobID, cancel, gocache.DefaultExpiration)
}

// UnregisterPollCancel 注销轮询的 cancelFunc（任务结束时调用）
func UnregisterPollCancel(jobID string) {
	pollCancelRegistry.Delete(jobID)
}

// CancelPollJob 外部调用以取消正在执行的任务，返回是否实际找到并取消
func CancelPollJob(jobID string) bool {
	if v, ok := pollCancelRegistry.Get(jobID); ok {
		v.(context.CancelFunc)()
		pollCancelRegistry.Delete(jobID)
		return true
	}
	return false
}

// 组件接口，测试时用假实现替换外部调用
type profileExtractor interface {
	Extract(ctx context.Context, memberID string, imageBytes []byte) (string, string, error)
}

type scenarioWriter interface {
	Write(ctx context.Context, memberID, diaryText string) (string, []string)
}

type imageSynthesizer interface {
	CreateProfile(ctx context.Context, styleTag, characterInfo string) (string, string, error)
	CreateWebtoon(ctx context.Context, styleTag, characterInfo string, seedNum int64, sceneInfo string) ([]string, error)
}

type assetRelay interface {
	Download(ctx context.Context, url, imgName string) (string, error)
	Publish(localPath, memberID, date string, isProfile bool) string
	FolderURL(memberID, date string) string
}

type webhookNotifier interface {
	NotifyCharacter(callbackHost string, result *CharacterResult)
	NotifyWebtoon(callbackHost string, result *WebtoonResult)
}

// Processor 流水线协调器：消费队列任务，依次驱动提取/脚本/生成/中转/回调
type Processor struct {
	DB          *gorm.DB
	Extractor   profileExtractor
	Writer      scenarioWriter
	Synthesizer imageSynthesizer
	Relay       assetRelay
	Notifier    webhookNotifier
}

func NewProcessor(db *gorm.DB) *Processor {
	cfg := config.AppConfig
	chat := NewChatClient(cfg.OpenAI.APIBase, cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	styles := NewStyleRegistry(cfg.Styles)
	return &Processor{
		DB:        db,
		Extractor: NewFeatureExtractor(chat),
		Writer:    NewScenarioWriter(chat),
		Synthesizer: NewImageSynthesizer(
			cfg.Replicate.APIBase,
			cfg.Replicate.APIToken,
			styles,
			cfg.PollInterval(),
			cfg.PollTimeout(),
			cfg.SubmitInterval(),
		),
		Relay:    DefaultRelay(),
		Notifier: NewWebhookNotifier(),
	}
}

// StartProcessor 启动任务消费者
func (p *Processor) StartProcessor(concurrency int) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     config.AppConfig.Redis.Addr,
			Password: config.AppConfig.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeProfileJob, p.HandleProfileJob)
	mux.HandleFunc(TypeWebtoonJob, p.HandleWebtoonJob)

	log.Printf("Starting Job Processor with concurrency %d...", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("could not run server: %v", err)
		}
	}()
}

// loadJob 反序列化队列负载并读取任务记录
func (p *Processor) loadJob(t *asynq.Task) (*models.Job, error) {
	var payload JobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	job, err := models.GetJobByID(p.DB, payload.JobID)
	if err != nil {
		return nil, fmt.Errorf("job not found: %v", err)
	}
	return job, nil
}

// HandleProfileJob 档案工作流：提取特征 -> 生成头像 -> 中转上传 -> 回调。
// 任何一步缺失结果都中止后续并标记失败，不发送部分回调。
func (p *Processor) HandleProfileJob(ctx context.Context, t *asynq.Task) error {
	job, err := p.loadJob(t)
	if err != nil {
		return err
	}
	params := job.Parameters.Profile
	if params == nil {
		job.UpdateStatus(p.DB, models.JobStatusFailed, nil, "missing profile parameters")
		return fmt.Errorf("missing profile parameters: %w", asynq.SkipRetry)
	}

	log.Printf("Processing Job: %s | Type: %s", job.ID, job.Type)
	if err := job.UpdateStatus(p.DB, models.JobStatusProcessing, nil, ""); err != nil {
		log.Printf("UpdateStatus processing failed: %v", err)
	}

	// 为轮询创建可取消的子上下文（外部 API 可通过 CancelPollJob 取消）
	jobCtx, cancel := context.WithCancel(ctx)
	RegisterPollCancel(job.ID, cancel)
	defer UnregisterPollCancel(job.ID)

	result, runErr := p.runProfileJob(jobCtx, job.MemberID, params)
	if runErr != nil {
		log.Printf("档案任务失败: %v", runErr)
		job.UpdateStatus(p.DB, models.JobStatusFailed, result, runErr.Error())
		p.saveCharacterRow(job.MemberID, params.CharacterStyle, result, models.CharacterStatusFailed)
		return nil // 业务失败，不再重试
	}

	job.UpdateStatus(p.DB, models.JobStatusSuccess, result, "")
	p.saveCharacterRow(job.MemberID, params.CharacterStyle, result, models.CharacterStatusReady)
	log.Printf("Job %s completed successfully", job.ID)
	return nil
}

// runProfileJob 档案工作流主体，返回任务结果；失败时中止整条链路
func (p *Processor) runProfileJob(ctx context.Context, memberID string, params *models.ProfileParams) (*models.JobResult, error) {
	imageBytes, err := os.ReadFile(params.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("读取上传图片失败: %w", err)
	}

	echoID, characterInfo, err := p.Extractor.Extract(ctx, memberID, imageBytes)
	if err != nil {
		return nil, fmt.Errorf("特征提取失败: %w", err)
	}
	log.Printf("Character Info: %s", characterInfo)

	// 防止外部调用串线：回传的用户标识必须与请求一致，不一致直接放弃且不回调
	if echoID != memberID {
		return nil, fmt.Errorf("user ID mismatch: got %q, want %q", echoID, memberID)
	}

	seed, imageURL, err := p.Synthesizer.CreateProfile(ctx, params.CharacterStyle, characterInfo)
	if err != nil {
		return nil, fmt.Errorf("头像生成失败: %w", err)
	}
	log.Printf("Seed: %s", seed)
	if imageURL == "" {
		return nil, fmt.Errorf("no image URL returned from profile generation")
	}

	localPath, err := p.Relay.Download(ctx, imageURL, "temp_profile")
	if err != nil {
		return nil, fmt.Errorf("下载头像失败 %s: %w", imageURL, err)
	}

	s3URL := p.Relay.Publish(localPath, memberID, "", true)
	if s3URL == "" {
		return nil, fmt.Errorf("failed to upload profile image")
	}

	// 上传的原始照片用完即删
	if err := os.Remove(params.ImagePath); err != nil {
		log.Printf("删除上传原图失败: %v", err)
	} else {
		log.Printf("Local file %s deleted after successful upload.", params.ImagePath)
	}

	result := &models.JobResult{
		CharacterInfo: characterInfo,
		SeedNum:       seed,
		ProfileURL:    s3URL,
	}

	p.Notifier.NotifyCharacter(params.CallbackHost, &CharacterResult{
		MemberID:                 SanitizeMemberID(memberID),
		CharacterInfo:            characterInfo,
		CharacterStyle:           params.CharacterStyle,
		SeedNum:                  seed,
		CharacterProfileImageURL: s3URL,
	})
	return result, nil
}

// saveCharacterRow 落一份用户最新档案记录（仅观测用，失败只记日志）
func (p *Processor) saveCharacterRow(memberID, style string, result *models.JobResult, status string) {
	c := &models.Character{
		MemberID: SanitizeMemberID(memberID),
		Style:    style,
		Status:   status,
	}
	if result != nil {
		c.Info = result.CharacterInfo
		c.SeedNum = result.SeedNum
		c.ProfileImageURL = result.ProfileURL
	}
	if err := models.SaveCharacter(p.DB, c); err != nil {
		log.Printf("保存角色档案记录失败: %v", err)
	}
}

// HandleWebtoonJob 网漫工作流：脚本 -> 逐格生成/中转 -> 单次回调。
// 单格失败只记录该格，不影响其余格子（部分成功语义）。
func (p *Processor) HandleWebtoonJob(ctx context.Context, t *asynq.Task) error {
	job, err := p.loadJob(t)
	if err != nil {
		return err
	}
	params := job.Parameters.Webtoon
	if params == nil {
		job.UpdateStatus(p.DB, models.JobStatusFailed, nil, "missing webtoon parameters")
		return fmt.Errorf("missing webtoon parameters: %w", asynq.SkipRetry)
	}

	log.Printf("Processing Job: %s | Type: %s", job.ID, job.Type)
	if err := job.UpdateStatus(p.DB, models.JobStatusProcessing, nil, ""); err != nil {
		log.Printf("UpdateStatus processing failed: %v", err)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	RegisterPollCancel(job.ID, cancel)
	defer UnregisterPollCancel(job.ID)

	result := p.runWebtoonJob(jobCtx, job.MemberID, params)
	p.saveSceneRows(job.ID, result.Scenes)

	job.UpdateStatus(p.DB, models.JobStatusSuccess, result, "")
	log.Printf("Job %s completed successfully", job.ID)
	return nil
}

// runWebtoonJob 网漫工作流主体。四格并行生成但结果按格序排列，
// 完成后无论成败都发送一次回调（只携带成功的格子）。
func (p *Processor) runWebtoonJob(ctx context.Context, memberID string, params *models.WebtoonParams) *models.JobResult {
	_, scenario := p.Writer.Write(ctx, memberID, params.Content)
	log.Printf("Scenario: %v", scenario)

	outcomes := make([]models.SceneOutcome, len(scenario))
	eg, egCtx := errgroup.WithContext(ctx)

	for i, scene := range scenario {
		outcomes[i] = models.SceneOutcome{
			Index:    i + 1,
			Scenario: scene,
			Status:   models.SceneStatusFailed,
		}
		if scene == ScenePlaceholder {
			outcomes[i].Error = "scenario generation failed"
			continue
		}

		i, scene := i, scene
		eg.Go(func() error {
			p.processScene(egCtx, memberID, params, i, scene, &outcomes[i])
			return nil
		})
	}
	eg.Wait()

	images := make([]WebtoonImage, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status == models.SceneStatusFinished {
			images = append(images, WebtoonImage{Scenario: o.Scenario, Image: o.ImageURL})
		}
	}

	result := &models.JobResult{
		FolderURL: p.Relay.FolderURL(memberID, params.Date),
		Scenes:    outcomes,
	}

	p.Notifier.NotifyWebtoon(params.CallbackHost, &WebtoonResult{
		MemberID:         memberID,
		Date:             params.Date,
		WebtoonFolderURL: result.FolderURL,
		WebtoonImages:    images,
	})
	return result
}

// processScene 单格场景：生成 -> 下载 -> 上传，结果写入 outcome
func (p *Processor) processScene(ctx context.Context, memberID string, params *models.WebtoonParams, idx int, scene string, outcome *models.SceneOutcome) {
	log.Printf("Processing scenario %d: %s", idx, scene)
	imageURLs, err := p.Synthesizer.CreateWebtoon(ctx, params.CharacterStyle, params.CharacterInfo, params.SeedNum, scene)
	if err != nil {
		log.Printf("场景 %d 生成失败: %v", idx, err)
		outcome.Error = err.Error()
		return
	}
	if len(imageURLs) == 0 {
		log.Printf("场景 %d 无输出", idx)
		outcome.Error = "no output available"
		return
	}

	var uploaded string
	var lastErr string
	for j, imageURL := range imageURLs {
		log.Printf("Processing image %d for scenario %d: %s", j, idx, imageURL)
		// 本地文件名取格序，最终对象键为 <member>/<date>/<格序>.webp
		localPath, err := p.Relay.Download(ctx, imageURL, strconv.Itoa(idx+1))
		if err != nil {
			log.Printf("Failed to download image from %s: %v", imageURL, err)
			lastErr = err.Error()
			continue
		}
		s3URL := p.Relay.Publish(localPath, memberID, params.Date, false)
		if s3URL == "" {
			log.Printf("Failed to upload webtoon image %d for scenario %d.", j, idx)
			lastErr = "upload failed"
			continue
		}
		uploaded = s3URL
	}

	if uploaded == "" {
		outcome.Error = lastErr
		return
	}
	outcome.Status = models.SceneStatusFinished
	outcome.ImageURL = uploaded
	outcome.Error = ""
}

// saveSceneRows 逐格结果落库（观测用，失败只记日志）
func (p *Processor) saveSceneRows(jobID string, outcomes []models.SceneOutcome) {
	scenes := make([]models.Scene, 0, len(outcomes))
	now := time.Now()
	for _, o := range outcomes {
		scenes = append(scenes, models.Scene{
			ID:        uuid.NewString(),
			JobID:     jobID,
			Index:     o.Index,
			Scenario:  o.Scenario,
			Status:    o.Status,
			ImageURL:  o.ImageURL,
			Error:     o.Error,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err := models.BatchCreateScenes(p.DB, scenes); err != nil {
		log.Printf("保存场景记录失败: %v", err)
	}
}
