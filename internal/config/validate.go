package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the configuration required for the given mode is
// present. Modes correspond to subcommands: "research", "leads", "serve",
// "sweep".
func (c *Config) Validate(mode string) error {
	var problems []string

	needStore := func() {
		if c.Store.DatabaseURL == "" && c.Store.Driver != "sqlite" {
			problems = append(problems, "store.database_url is required")
		}
	}
	needApify := func() {
		if c.Apify.Key == "" {
			problems = append(problems, "apify.key is required")
		}
	}

	switch mode {
	case "research":
		needStore()
		needApify()
		if c.OpenAI.Key == "" {
			problems = append(problems, "openai.key is required")
		}
	case "leads":
		needStore()
		needApify()
		if c.Verifier.Key == "" {
			problems = append(problems, "verifier.key is required")
		}
	case "serve":
		needStore()
		needApify()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "sweep", "stats":
		needStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Research.MaxKeywords < 1 || c.Research.MaxKeywords > 20 {
		problems = append(problems, "research.max_keywords must be between 1 and 20")
	}
	if c.Research.RevealIntervalMins < 1 {
		problems = append(problems, "research.reveal_interval_mins must be >= 1")
	}
	if c.Research.ScoreBatchSize < 1 {
		problems = append(problems, "research.score_batch_size must be >= 1")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}
