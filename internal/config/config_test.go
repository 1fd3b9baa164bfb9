package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		TelegramAPIToken: "123456:real-token",
		Moderation: Moderation{
			NewcomerWindowHours: 24,
			UserCooldown:        time.Minute,
			BatchMaxTokens:      3000,
			DedupCacheSize:      10000,
		},
		Quota: Quota{DailyLimit: 1000},
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "zero daily limit",
			mutate:  func(c *Config) { c.Quota.DailyLimit = 0 },
			wantErr: true,
		},
		{
			name:    "negative daily limit",
			mutate:  func(c *Config) { c.Quota.DailyLimit = -5 },
			wantErr: true,
		},
		{
			name:    "zero newcomer window",
			mutate:  func(c *Config) { c.Moderation.NewcomerWindowHours = 0 },
			wantErr: true,
		},
		{
			name:    "zero batch tokens",
			mutate:  func(c *Config) { c.Moderation.BatchMaxTokens = 0 },
			wantErr: true,
		},
		{
			name:    "zero dedup cache",
			mutate:  func(c *Config) { c.Moderation.DedupCacheSize = 0 },
			wantErr: true,
		},
		{
			name:    "negative cooldown",
			mutate:  func(c *Config) { c.Moderation.UserCooldown = -time.Second },
			wantErr: true,
		},
		{
			name:    "placeholder token",
			mutate:  func(c *Config) { c.TelegramAPIToken = "your_token_here" },
			wantErr: true,
		},
		{
			name:   "zero cooldown disables suppression and is allowed",
			mutate: func(c *Config) { c.Moderation.UserCooldown = 0 },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
