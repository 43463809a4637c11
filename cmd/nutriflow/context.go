package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"nutriflow/internal/api"
	"nutriflow/internal/config"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
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
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) client() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.APIBaseURL(), cfg.API.Token), nil
}

// withClient runs fn against the daemon API and rewrites connection errors
// into hints.
func (c *commandContext) withClient(fn func(*api.Client) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	if err := fn(client); err != nil {
		return c.wrapDialError(err)
	}
	return nil
}

func (c *commandContext) wrapDialError(err error) error {
	addr := ""
	if cfg, cfgErr := c.ensureConfig(); cfgErr == nil {
		addr = cfg.APIBaseURL()
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; start it with `nutriflow daemon`", addr)
	case api.IsUnauthorized(err):
		return fmt.Errorf("daemon rejected the API token; check api.token or NUTRIFLOW_API_TOKEN")
	default:
		return err
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
