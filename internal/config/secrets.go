package config

import "maps"

// RedactedConfig returns a copy of cfg with credentials replaced by "***".
// Slices and maps are cloned so the copy can be logged or mutated freely.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.API.Key)
	redact(&out.API.KeyPassword)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	if cfg.Portfolio.Targets != nil {
		out.Portfolio.Targets = append([]TargetAllocation(nil), cfg.Portfolio.Targets...)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}

	out.Strategy.Momentum.Thresholds = maps.Clone(cfg.Strategy.Momentum.Thresholds)
	out.Strategy.MeanReversion.ZScoreThresholds = maps.Clone(cfg.Strategy.MeanReversion.ZScoreThresholds)
	out.Strategy.PositionSizing = maps.Clone(cfg.Strategy.PositionSizing)
	out.Risk.VolatilityMultipliers = maps.Clone(cfg.Risk.VolatilityMultipliers)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
