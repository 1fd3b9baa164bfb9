package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type (
	Config struct {
		TelegramAPIToken string `env:"TOKEN,required" yaml:"telegram_api_token"`
		ReviewGroupID    int64  `env:"REVIEW_GROUP_ID" yaml:"review_group_id"`
		AdminUserID      int64  `env:"ADMIN_USER_ID" yaml:"admin_user_id"`
		LogLevel         int    `env:"LOG_LEVEL,default=4" yaml:"log_level"`
		DotPath          string `env:"DOT_PATH,default=~/.modbot" yaml:"dot_path"`
		MetricsAddr      string `env:"METRICS_ADDR,default=:2112" yaml:"metrics_addr"`

		LLM        LLM        `yaml:"llm"`
		Moderation Moderation `yaml:"moderation"`
		Quota      Quota      `yaml:"quota"`
	}

	LLM struct {
		RemoteAPIKey     string `env:"LLM_REMOTE_API_KEY,required" yaml:"remote_api_key"`
		RemoteModel      string `env:"LLM_REMOTE_MODEL,default=google/gemini-2.0-flash-001" yaml:"remote_model"`
		RemoteBaseURL    string `env:"LLM_REMOTE_API_URL,default=https://openrouter.ai/api/v1" yaml:"remote_base_url"`
		RemoteType       string `env:"LLM_REMOTE_API_TYPE,default=openai" yaml:"remote_type"`
		LocalModel       string `env:"LLM_LOCAL_MODEL,default=gemma-3-4b" yaml:"local_model"`
		LocalBaseURL     string `env:"LLM_LOCAL_API_URL,default=http://127.0.0.1:1234/v1" yaml:"local_base_url"`
		SystemPromptPath string `env:"LLM_SYSTEM_PROMPT_PATH,default=etc/system_prompt.md" yaml:"system_prompt_path"`
	}

	Moderation struct {
		DryRun              bool          `env:"MOD_DRY_RUN,default=false" yaml:"dry_run"`
		NewcomerWindowHours int           `env:"MOD_NEWCOMER_WINDOW_HOURS,default=24" yaml:"newcomer_window_hours"`
		UserCooldown        time.Duration `env:"MOD_USER_COOLDOWN,default=60s" yaml:"user_cooldown"`
		MuteDuration        time.Duration `env:"MOD_MUTE_DURATION,default=1h" yaml:"mute_duration"`
		BatchMaxTokens      int           `env:"MOD_BATCH_MAX_TOKENS,default=3000" yaml:"batch_max_tokens"`
		BatchMaxWait        time.Duration `env:"MOD_BATCH_MAX_WAIT,default=10m" yaml:"batch_max_wait"`
		DedupCacheSize      int           `env:"MOD_DEDUP_CACHE_SIZE,default=10000" yaml:"dedup_cache_size"`
		HardBanKeywords     []string      `env:"MOD_HARD_BAN_KEYWORDS" yaml:"hard_ban_keywords"`
		HardBanPatterns     []string      `env:"MOD_HARD_BAN_PATTERNS" yaml:"hard_ban_patterns"`
	}

	// Quota covers the remote path budget. The budget is process-wide:
	// when several groups are monitored they share one daily limit.
	Quota struct {
		DailyLimit     int           `env:"QUOTA_DAILY_LIMIT,default=1000" yaml:"daily_limit"`
		WarmupInterval time.Duration `env:"QUOTA_WARMUP_INTERVAL,default=30m" yaml:"warmup_interval"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		if path := os.Getenv("MODBOT_CONFIG"); path != "" {
			raw, err := os.ReadFile(path)
			if err != nil {
				globalErr = fmt.Errorf("read config file: %w", err)
				return
			}
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				globalErr = fmt.Errorf("parse config file: %w", err)
				return
			}
		}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("MODBOT_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			globalErr = fmt.Errorf("validate config: %w", err)
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			globalErr = fmt.Errorf("get user home directory: %w", err)
			return
		}
		cfg.DotPath = strings.Replace(cfg.DotPath, "~", home, 1)
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}

// Validate rejects configurations that would make the quota interval
// undefined or the dispatch core inert. Called once at startup, never
// at runtime.
func (c *Config) Validate() error {
	if c.Quota.DailyLimit < 1 {
		return fmt.Errorf("quota daily limit must be at least 1, got %d", c.Quota.DailyLimit)
	}
	if c.Moderation.NewcomerWindowHours < 1 {
		return fmt.Errorf("newcomer window must be at least 1 hour, got %d", c.Moderation.NewcomerWindowHours)
	}
	if c.Moderation.BatchMaxTokens < 1 {
		return fmt.Errorf("batch max tokens must be positive, got %d", c.Moderation.BatchMaxTokens)
	}
	if c.Moderation.DedupCacheSize < 1 {
		return fmt.Errorf("dedup cache size must be positive, got %d", c.Moderation.DedupCacheSize)
	}
	if c.Moderation.UserCooldown < 0 {
		return fmt.Errorf("user cooldown must not be negative, got %s", c.Moderation.UserCooldown)
	}
	if strings.Contains(c.TelegramAPIToken, "your_") {
		return fmt.Errorf("telegram api token is still using a placeholder value")
	}
	return nil
}
