package runstate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"ridereel/internal/runstate"
	"ridereel/internal/testsupport"
)

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "flatten", "concat")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		t.Fatalf("run id %q is not a uuid: %v", run.ID, err)
	}

	id, err := store.BeginStage(ctx, run.ID, "flatten")
	if err != nil {
		t.Fatalf("BeginStage: %v", err)
	}
	if err := store.FinishStage(ctx, id, runstate.Outcome{Items: 3600, Detail: "1 Hz"}, nil); err != nil {
		t.Fatalf("FinishStage: %v", err)
	}
	failed, err := store.BeginStage(ctx, run.ID, "align")
	if err != nil {
		t.Fatalf("BeginStage: %v", err)
	}
	stageErr := errors.New("no clips probed")
	if err := store.FinishStage(ctx, failed, runstate.Outcome{}, stageErr); err != nil {
		t.Fatalf("FinishStage: %v", err)
	}
	if err := store.FinishRun(ctx, run.ID, stageErr); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	stages, err := store.Stages(ctx, run.ID)
	if err != nil {
		t.Fatalf("Stages: %v", err)
	}
	if len(stages) != 2 || stages[0].Stage != "flatten" || stages[0].Items != 3600 || stages[0].Status != runstate.StatusCompleted {
		t.Fatalf("unexpected stages: %+v", stages)
	}
	if stages[1].Status != runstate.StatusFailed || stages[1].Error != "no clips probed" {
		t.Fatalf("failed stage not recorded: %+v", stages[1])
	}

	runs, err := store.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != runstate.StatusFailed || runs[0].FinishedAt == nil {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	latest, ok, err := store.LatestStage(ctx, "flatten")
	if err != nil || !ok || latest.ID != id {
		t.Fatalf("LatestStage = %+v, %v, %v", latest, ok, err)
	}
	if _, ok, _ := store.LatestStage(ctx, "concat"); ok {
		t.Fatal("concat never ran")
	}
}

func TestMarkInterrupted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "build", "build")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.BeginStage(ctx, run.ID, "build"); err != nil {
		t.Fatal(err)
	}
	n, err := store.MarkInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("MarkInterrupted = %d, %v", n, err)
	}
	stages, _ := store.Stages(ctx, run.ID)
	if stages[0].Status != runstate.StatusInterrupted || stages[0].FinishedAt == nil {
		t.Fatalf("stage not interrupted: %+v", stages[0])
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()
	first, err := runstate.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	run, err := first.BeginRun(ctx, "select", "select")
	if err != nil {
		t.Fatal(err)
	}
	_ = first.FinishRun(ctx, run.ID, nil)
	_ = first.Close()

	second := testsupport.MustOpenStore(t, cfg)
	runs, err := second.RecentRuns(ctx, 0)
	if err != nil || len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("history lost after reopen: %+v %v", runs, err)
	}
}
