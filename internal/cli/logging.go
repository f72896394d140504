package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"dataengine/internal/config"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		fmt.Sprintf("TTL (short/medium/long): %ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long),
		fmt.Sprintf("Sync: directory window %s, inactive after %s", cfg.DirectoryMaxAge(), cfg.InactiveAfter()),
		fmt.Sprintf("Routing entries: %d", len(cfg.Routing)),
		sourcesLine(cfg),
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sourcesLine(cfg *config.Config) string {
	switch {
	case strings.TrimSpace(cfg.Sources.File) != "":
		if cfg.Sources.Value != nil {
			return fmt.Sprintf("Sources config: %s (%d sources)", cfg.Sources.File, len(cfg.Sources.Value.Sources))
		}
		return fmt.Sprintf("Sources config: %s", cfg.Sources.File)
	case cfg.Sources.Value != nil:
		return "Sources config: inline"
	default:
		return "Sources config: not configured"
	}
}
