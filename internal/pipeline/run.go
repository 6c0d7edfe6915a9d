package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ridereel/internal/logging"
	"ridereel/internal/runstate"
	"ridereel/internal/services"
	"ridereel/internal/workerpool"
)

// Result reports one stage of a run.
type Result struct {
	Stage    string
	Outcome  runstate.Outcome
	Duration time.Duration
	Err      error
}

// Run executes the stages from..to in order against env. It stops at the
// first failing stage. Every run and stage is recorded when env has a store.
func Run(ctx context.Context, env *Env, from, to string) ([]Result, error) {
	selected, err := Range(from, to)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "select stages", err.Error(), nil)
	}
	if needsFootage(selected) {
		if _, err := env.discover(); err != nil {
			return nil, err
		}
	}

	first, last := selected[0].Name, selected[len(selected)-1].Name
	if env.Store != nil {
		if n, err := env.Store.MarkInterrupted(ctx); err != nil {
			env.Logger.Warn("run history cleanup failed", logging.Error(err))
		} else if n > 0 {
			env.Logger.Info("previous run was interrupted", logging.Int64("runs", n))
		}
		run, err := env.Store.BeginRun(ctx, first, last)
		if err != nil {
			return nil, fmt.Errorf("record run start: %w", err)
		}
		env.RunID = run.ID
	} else if env.RunID == "" {
		env.RunID = uuid.NewString()
	}

	runCtx := services.WithRunID(ctx, env.RunID)
	logger := logging.WithContext(runCtx, env.Logger)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("from", first),
		logging.String("to", last),
		logging.String("project", env.Layout.Root),
		logging.Int("cores", env.Sizes.Cores),
		logging.Int("ffmpeg_workers", env.footageWorkers()),
		logging.Int64("memory_mib", int64(workerpool.TotalMemory()>>20)),
	)

	started := time.Now()
	results := make([]Result, 0, len(selected))
	var runErr error
	for _, st := range selected {
		res := runStage(runCtx, env, st)
		results = append(results, res)
		if res.Err != nil {
			runErr = res.Err
			break
		}
	}

	if env.Store != nil {
		if err := env.Store.FinishRun(ctx, env.RunID, runErr); err != nil {
			logger.Error("failed to persist run result", logging.Error(err))
		}
	}
	if runErr != nil {
		return results, runErr
	}
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("stages", len(results)),
		logging.Duration("duration", time.Since(started).Round(time.Millisecond)),
	)
	return results, nil
}

func needsFootage(selected []Stage) bool {
	for _, st := range selected {
		if st.Name == Align || st.Name == Extract {
			return true
		}
	}
	return false
}

func runStage(ctx context.Context, env *Env, st Stage) Result {
	stageCtx := services.WithStage(ctx, st.Name)
	stageLogger := logging.WithContext(ctx, logging.ForStage(env.Logger, env.Config, st.Name))
	stageEnv := *env
	stageEnv.Logger = stageLogger

	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("description", st.Description),
	)

	res := Result{Stage: st.Name}
	started := time.Now()
	var stageID int64
	if env.Store != nil {
		id, err := env.Store.BeginStage(ctx, env.RunID, st.Name)
		if err != nil {
			res.Err = fmt.Errorf("record stage start: %w", err)
			return res
		}
		stageID = id
	}

	if health := st.Check(env.Layout); !health.Ready() {
		res.Err = services.Wrap(services.ErrValidation, st.Name, "check inputs", health.Detail(), nil)
	} else {
		res.Outcome, res.Err = st.run(stageCtx, &stageEnv)
	}
	res.Duration = time.Since(started)

	if env.Store != nil {
		if err := env.Store.FinishStage(ctx, stageID, res.Outcome, res.Err); err != nil {
			stageLogger.Error("failed to persist stage result", logging.Error(err))
		}
	}

	if res.Err != nil {
		logging.ErrorWithContext(stageLogger, "stage failed", "stage_failure",
			logging.String("error_message", strings.TrimSpace(res.Err.Error())),
			logging.String(logging.FieldErrorHint, services.Hint(res.Err)),
			logging.Duration("duration", res.Duration.Round(time.Millisecond)),
			logging.Error(res.Err),
		)
		return res
	}
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("items", res.Outcome.Items),
		logging.Int("skipped", res.Outcome.Skipped),
		logging.String("detail", res.Outcome.Detail),
		logging.Duration("duration", res.Duration.Round(time.Millisecond)),
	)
	return res
}
