package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// StyleModel 画风对应的生成模型 (model + version)
type StyleModel struct {
	Model   string `yaml:"model"`
	Version string `yaml:"version"`
}

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	OpenAI struct {
		APIBase string `yaml:"api_base"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
	} `yaml:"openai"`
	Replicate struct {
		APIBase  string `yaml:"api_base"`
		APIToken string `yaml:"api_token"`
	} `yaml:"replicate"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
		Domain    string `yaml:"domain"`
	} `yaml:"minio"`
	Storage struct {
		RootPrefix string `yaml:"root_prefix"` // 对象存储根目录, 例如 webtoon-ai
		UploadDir  string `yaml:"upload_dir"`  // 本地临时下载目录
	} `yaml:"storage"`
	Pipeline struct {
		PollIntervalSec   int `yaml:"poll_interval_sec"`   // 预测任务轮询间隔(秒)
		PollTimeoutSec    int `yaml:"poll_timeout_sec"`    // 单个预测任务最长等待时间(秒)
		SubmitIntervalSec int `yaml:"submit_interval_sec"` // 生成请求限流间隔(秒)
		WorkerConcurrency int `yaml:"worker_concurrency"`  // asynq 消费并发数
	} `yaml:"pipeline"`
	Styles map[string]StyleModel `yaml:"styles"`
}

var AppConfig *Config

func InitConfig() {
	f, err := os.Open("config/config.yaml")
	if err != nil {
		log.Fatalf("配置文件读取失败: %v", err)
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	AppConfig = &Config{}
	if err := decoder.Decode(AppConfig); err != nil {
		log.Fatalf("配置文件解析失败: %v", err)
	}
	applyDefaults(AppConfig)
}

// applyDefaults 填充未配置的默认值
func applyDefaults(c *Config) {
	if c.OpenAI.APIBase == "" {
		c.OpenAI.APIBase = "https://api.openai.com"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Replicate.APIBase == "" {
		c.Replicate.APIBase = "https://api.replicate.com"
	}
	if c.Storage.RootPrefix == "" {
		c.Storage.RootPrefix = "webtoon-ai"
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "./uploads"
	}
	if c.Pipeline.PollIntervalSec <= 0 {
		c.Pipeline.PollIntervalSec = 5
	}
	if c.Pipeline.PollTimeoutSec <= 0 {
		c.Pipeline.PollTimeoutSec = 20 * 60
	}
	if c.Pipeline.SubmitIntervalSec <= 0 {
		c.Pipeline.SubmitIntervalSec = 1
	}
	if c.Pipeline.WorkerConcurrency <= 0 {
		c.Pipeline.WorkerConcurrency = 5
	}
}

// PollInterval 轮询间隔
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Pipeline.PollIntervalSec) * time.Second
}

// PollTimeout 轮询超时上限
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Pipeline.PollTimeoutSec) * time.Second
}

// SubmitInterval 生成请求限流间隔
func (c *Config) SubmitInterval() time.Duration {
	return time.Duration(c.Pipeline.SubmitIntervalSec) * time.Second
}
