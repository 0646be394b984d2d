package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"bidsmirror/internal/catalog"
	"bidsmirror/internal/config"
	"bidsmirror/internal/hosting"
	"bidsmirror/internal/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// hostingClient returns an API client, requiring a token.
func (c *commandContext) hostingClient() (*hosting.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireHostingToken(); err != nil {
		return nil, err
	}
	return hosting.NewClient(hosting.ConfigFrom(cfg)), nil
}

// resolveUnits returns the explicit unit ids, or every catalog unit when
// all is set.
func (c *commandContext) resolveUnits(ctx context.Context, args []string, all bool) ([]string, error) {
	switch {
	case all && len(args) > 0:
		return nil, errors.New("pass unit ids or --all, not both")
	case !all && len(args) == 0:
		return nil, errors.New("at least one unit id (or --all) is required")
	case !all:
		return args, nil
	}

	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	source, err := catalog.NewSource(cfg)
	if err != nil {
		return nil, err
	}
	units, err := source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	units = catalog.Dedupe(units)
	catalog.Sort(units)
	ids := make([]string, 0, len(units))
	seen := make(map[string]struct{}, len(units))
	for _, u := range units {
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
