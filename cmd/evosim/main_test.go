package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talgya/evosim/internal/experiment"
	"github.com/talgya/evosim/internal/persistence"
)

const testConfig = `
seed: 11
population:
  size: 20
game:
  variant: pggi
  threshold: 2
  generations: 6
  r: 3
sweep:
  r_min: 1
  r_max: 3
  r_step: 1
  realizations: 1
  runs: 2
`

// setupCLI writes a small config and points the store at a temp database.
func setupCLI(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "experiment.yaml")
	if err := os.WriteFile(cfgPath, []byte(testConfig), 0600); err != nil {
		t.Fatal(err)
	}
	dbPath = filepath.Join(dir, "data", "evosim.db")
	t.Setenv("EVOSIM_DB", dbPath)
	return cfgPath, dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("output %q", out)
	}

	out, err = execute(t, "version", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil || v["version"] != version {
		t.Errorf("json output %q: %v", out, err)
	}
}

func TestRunCmdSavesRun(t *testing.T) {
	cfgPath, dbPath := setupCLI(t)

	out, err := execute(t, "run", "--config", cfgPath, "--json", "--save", "--r", "4")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var res experiment.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Seed != 11 || res.R != 4 || len(res.CoopLevel) != 6 {
		t.Errorf("unexpected result %+v", res)
	}

	ctx := context.Background()
	db, err := persistence.Open(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rec, err := db.LoadRun(ctx, res.ID)
	if err != nil {
		t.Fatalf("stored run: %v", err)
	}
	if len(rec.CoopLevel) != 6 {
		t.Errorf("stored series length %d", len(rec.CoopLevel))
	}
	if last, err := db.GetMeta(ctx, "last_run"); err != nil || last != res.ID {
		t.Errorf("last_run %q, %v", last, err)
	}
}

func TestRunCmdSeedFlagOverridesConfig(t *testing.T) {
	cfgPath, _ := setupCLI(t)
	out, err := execute(t, "run", "--config", cfgPath, "--seed", "99")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "seed=99") {
		t.Errorf("output %q", out)
	}
}

func TestRunCmdRejectsBadConfig(t *testing.T) {
	cfgPath, _ := setupCLI(t)
	if _, err := execute(t, "run", "--config", cfgPath, "--log-level", "loud"); err == nil {
		t.Error("expected invalid log level error")
	}
	if _, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected missing config error")
	}
}

func TestSweepCmdStoresSweep(t *testing.T) {
	cfgPath, dbPath := setupCLI(t)

	out, err := execute(t, "sweep", "--config", cfgPath)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "eta") {
		t.Errorf("missing table header: %q", out)
	}

	ctx := context.Background()
	db, err := persistence.Open(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	sweeps, err := db.ListSweeps(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sweeps) != 1 {
		t.Fatalf("expected one stored sweep, got %d", len(sweeps))
	}
	rec, err := db.LoadSweep(ctx, sweeps[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Points) != 2 || rec.Points[0].Runs != 2 {
		t.Errorf("unexpected points %+v", rec.Points)
	}
}

func TestSweepCmdRejectsEmptyRange(t *testing.T) {
	cfgPath, _ := setupCLI(t)
	if _, err := execute(t, "sweep", "--config", cfgPath, "--r-max", "1"); err == nil {
		t.Error("expected empty range error")
	}
}
