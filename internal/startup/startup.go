// Package startup holds the steps both binaries run before any UI exists.
package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"

	"github.com/xhad/askdoc/pkg/config"
)

type Options struct {
	ConfigPath string
	EnvFile    string // loaded if present; existing variables win
	Getenv     func(string) string
}

// Prepare loads the env file and configuration, validates it and resolves
// the provider credential. The returned error is meant to be the single
// fatal message a binary prints.
func Prepare(opts Options) (*config.Config, string, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("failed to load %s: %w", opts.EnvFile, err)
		}
	}

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, "", err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, "", fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}

	apiKey, err := cfg.Credential(opts.Getenv)
	if err != nil {
		return nil, "", err
	}
	return cfg, apiKey, nil
}
