package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ridereel/internal/config"
	"ridereel/internal/logging"
	"ridereel/internal/pipeline"
	"ridereel/internal/project"
	"ridereel/internal/runstate"
)

// projectConfigName is looked up inside --project when --config is unset.
const projectConfigName = "ridereel.toml"

type commandContext struct {
	configFlag  *string
	projectFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag, projectFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		projectFlag: projectFlag,
	}
}

func (c *commandContext) projectDir() string {
	if c.projectFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.projectFlag)
}

func (c *commandContext) configFile() string {
	if c.configFlag != nil {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			return path
		}
	}
	if dir := c.projectDir(); dir != "" {
		candidate := filepath.Join(dir, projectConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.LoadWithProject(c.configFile(), c.projectDir())
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configExists = exists
	})
	return c.config, c.configErr
}

// session holds everything a pipeline command needs while it owns the project.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	lock   *project.Lock
	store  *runstate.Store
	env    *pipeline.Env
}

func (c *commandContext) openSession(progress *progressReporter) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	layout := project.NewLayout(cfg)
	if err := layout.Ensure(); err != nil {
		return nil, err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	lock, err := project.Acquire(layout)
	if err != nil {
		if errors.Is(err, project.ErrLocked) {
			return nil, fmt.Errorf("%w; wait for the other run to finish", err)
		}
		return nil, err
	}
	store, err := runstate.Open(cfg)
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("open run history: %w", err)
	}

	opts := []pipeline.Option{pipeline.WithStore(store)}
	if progress != nil {
		opts = append(opts, pipeline.WithProgress(progress.Report))
	}
	env, err := pipeline.NewEnv(cfg, logging.NewComponentLogger(logger, "pipeline"), opts...)
	if err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, lock: lock, store: store, env: env}, nil
}

func (s *session) Close() error {
	if s == nil {
		return nil
	}
	return errors.Join(s.store.Close(), s.lock.Release())
}
