package laneval

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"laneval/internal/model"
	"laneval/internal/replay"
)

func testSpec() DatasetSpec {
	return DatasetSpec{
		Name:      "itest",
		Segments:  3,
		Frames:    600,
		Lanes:     4,
		LaneWidth: 3.5,
		Vehicles:  10,
		Seed:      7,
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{StoreKind: "memory", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return client
}

func TestIndexIsDeterministic(t *testing.T) {
	ctx := context.Background()
	first, err := newTestClient(t).Index(ctx, testSpec())
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if first.Instants == 0 {
		t.Fatalf("expected the synthetic dataset to contain lane changes")
	}
	if first.Train+first.Validation != first.Instants {
		t.Fatalf("partition counts do not cover the dataset: %+v", first)
	}

	second, err := newTestClient(t).Index(ctx, testSpec())
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if first != second {
		t.Fatalf("same spec produced different indexes:\n%+v\n%+v", first, second)
	}
}

func TestSplitReportsStoredDataset(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	indexed, err := client.Index(ctx, testSpec())
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	split, err := client.Split(ctx, "itest", 0.8)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if split.Total != indexed.Instants {
		t.Fatalf("split total %d, indexed %d", split.Total, indexed.Instants)
	}
	if split.Train+split.Validation != split.Total {
		t.Fatalf("partitions do not cover the dataset: %+v", split)
	}
	if split.Train != indexed.Train {
		t.Fatalf("default-fraction split disagrees with index summary: %+v vs %+v", split, indexed)
	}

	if _, err := client.Split(ctx, "missing", 0.8); err == nil {
		t.Fatalf("expected error for unindexed dataset")
	}
	if _, err := client.Split(ctx, "itest", 1.5); err == nil {
		t.Fatalf("expected error for out-of-range fraction")
	}
}

func TestRunEvaluatesAndPersistsEpisodes(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	if _, err := client.Index(ctx, testSpec()); err != nil {
		t.Fatalf("index: %v", err)
	}

	summary, err := client.Run(ctx, RunRequest{
		Dataset:  testSpec(),
		Mode:     model.Train.String(),
		Episodes: 3,
		Seed:     5,
		RunID:    "api-run",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID != "api-run" || summary.Episodes != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Successes != 3 {
		t.Fatalf("scripted policy should complete every maneuver: %+v", summary)
	}

	episodes, err := client.Episodes(ctx, "api-run")
	if err != nil {
		t.Fatalf("episodes: %v", err)
	}
	if len(episodes) != 3 {
		t.Fatalf("expected 3 persisted episodes, got %d", len(episodes))
	}
	for _, episode := range episodes {
		if episode.Mode != "train" || !episode.Succeeded {
			t.Fatalf("unexpected persisted episode: %+v", episode)
		}
	}

	if _, err := client.Episodes(ctx, "unknown-run"); err == nil {
		t.Fatalf("expected error for unknown run")
	}
}

func TestRunDerivesInstantsWithoutIndex(t *testing.T) {
	client := newTestClient(t)

	summary, err := client.Run(context.Background(), RunRequest{
		Dataset:  testSpec(),
		Episodes: 1,
		Seed:     3,
	})
	if err != nil {
		t.Fatalf("run without prior index: %v", err)
	}
	if summary.Episodes != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.RunID == "" {
		t.Fatalf("expected a generated run id")
	}
}

func TestRunWritesArtifacts(t *testing.T) {
	artifactsDir := t.TempDir()
	client, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: artifactsDir,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()
	if err := client.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := client.Run(context.Background(), RunRequest{
		Dataset:  testSpec(),
		Episodes: 1,
		Seed:     2,
		RunID:    "artifact-run",
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, file := range []string{
		filepath.Join("artifact-run", "config.json"),
		filepath.Join("artifact-run", "summary.json"),
		filepath.Join("artifact-run", "episodes.csv"),
		"run_index.json",
	} {
		if _, err := os.Stat(filepath.Join(artifactsDir, file)); err != nil {
			t.Fatalf("expected artifact %s: %v", file, err)
		}
	}
}

func TestRunRejectsBadEnums(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.Run(context.Background(), RunRequest{Mode: "bogus"}); err == nil {
		t.Fatalf("expected mode parse error")
	}
	if _, err := client.Run(context.Background(), RunRequest{RewardType: "bogus"}); err == nil {
		t.Fatalf("expected reward type parse error")
	}
}

func TestBuildSyntheticRegeneratesIdenticalRecordings(t *testing.T) {
	spec := testSpec()
	road, first, err := buildSynthetic(spec)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_, second, err := buildSynthetic(spec)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	a := replay.IndexInstants(first, road)
	b := replay.IndexInstants(second, road)
	if len(a) != len(b) {
		t.Fatalf("instant counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("instant %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
