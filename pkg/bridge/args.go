package bridge

import (
	"errors"
	"strconv"

	"github.com/denysvitali/tweetvault/internal/models"
)

// ErrNoInputSource is returned when a request names neither a JSON file nor a cookie
var ErrNoInputSource = errors.New("no input source provided")

// BuildArgs translates a sync request into arguments for the CLI's sync command.
// The input file wins over the cookie when both are present.
func BuildArgs(cfg models.SyncConfig) ([]string, error) {
	args := []string{"sync"}

	switch {
	case cfg.InputPath != "":
		args = append(args, "--input", cfg.InputPath)
	case cfg.Cookie != "":
		args = append(args, "--cookie", cfg.Cookie)
	default:
		return nil, ErrNoInputSource
	}

	args = append(args, "--provider", cfg.Provider)

	if cfg.APIKey != "" {
		args = append(args, "--api-key", cfg.APIKey)
	}

	args = append(args, "--output", cfg.OutputDir)

	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.BaseURL != "" {
		args = append(args, "--base-url", cfg.BaseURL)
	}
	if cfg.Limit > 0 {
		args = append(args, "--limit", strconv.Itoa(cfg.Limit))
	}

	return args, nil
}

// redactArgs masks flag values that carry credentials
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		switch out[i] {
		case "--api-key", "--cookie":
			out[i+1] = "***"
		}
	}
	return out
}
