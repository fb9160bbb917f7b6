package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("Harvester", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("storage", config.Storage.Type).
		Int("workers", config.Scrape.Workers).
		Int("max_retry_rounds", config.Scrape.MaxRetryRounds).
		Bool("headless", config.Browser.Headless).
		Msg("Harvester starting")
}
