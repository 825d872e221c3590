package config

import (
	"log"

	"pressroom/pkg/config"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DB      config.DBConfig      `yaml:"db"`
	MQ      config.MQConfig      `yaml:"mq"`
	Redis   config.RedisConfig   `yaml:"redis"`
	JWT     config.JWTConfig     `yaml:"jwt"`
	Server  config.ServerConfig  `yaml:"server"`
	Secrets config.SecretsConfig `yaml:"secrets"`

	Scheduler struct {
		CooldownSeconds int  `yaml:"cooldown_seconds"`
		TickSeconds     int  `yaml:"tick_seconds"`
		TickEnabled     bool `yaml:"tick_enabled"`
	} `yaml:"scheduler"`

	Broadcast struct {
		MaxRecipients int `yaml:"max_recipients"`
		BatchSize     int `yaml:"batch_size"`
	} `yaml:"broadcast"`

	Mail config.MailEnvConfig `yaml:"-"`
}

func Load() *Config {
	// 使用统一配置中心
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		log.Fatalf("failed to marshal config: %v", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideSecretsFromEnv(&cfg.Secrets)

	// 邮件环境变量兜底层
	cfg.Mail = config.MailFromEnv()

	if cfg.Scheduler.CooldownSeconds <= 0 {
		cfg.Scheduler.CooldownSeconds = 60
	}
	if cfg.Scheduler.TickSeconds <= 0 {
		cfg.Scheduler.TickSeconds = 60
	}

	return &cfg
}
