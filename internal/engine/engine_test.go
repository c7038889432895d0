package engine_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/nomaai/deidgo/internal/config"
	"github.com/nomaai/deidgo/internal/engine"
	"github.com/nomaai/deidgo/internal/ioadapter"
)

func ioConfig(ioType string, kv ...any) config.IOConfig {
	cfg := map[string]any{}
	for i := 0; i+1 < len(kv); i += 2 {
		cfg[kv[i].(string)] = kv[i+1]
	}
	return config.IOConfig{IOType: ioType, Config: cfg}
}

func writeCSV(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func twoTableConfig(t *testing.T, dir string) *config.ClearedConfig {
	t.Helper()
	writeCSV(t, filepath.Join(dir, "in", "patients.csv"), "patient_id\n101\n202\n")
	writeCSV(t, filepath.Join(dir, "in", "visits.csv"), "patient_id\n101\n303\n")

	return &config.ClearedConfig{
		Name: "engine_test",
		IO: config.ClearedIOConfig{
			Data: config.DataConfig{
				InputConfig:  ioConfig("filesystem", "base_path", filepath.Join(dir, "in"), "file_format", "csv"),
				OutputConfig: ioConfig("filesystem", "base_path", filepath.Join(dir, "out"), "file_format", "csv"),
			},
			Reference: config.ReferenceConfig{
				Config: ioConfig("filesystem", "base_path", filepath.Join(dir, "refs")),
			},
		},
		Tables: map[string]config.TableConfig{
			"patients": {
				Transformers: []config.TransformerConfig{
					{UID: "patient_id", Method: "id", Column: "patient_id", Identifier: "patient_uid"},
				},
			},
			"visits": {
				DependsOn: []string{"patients"},
				Transformers: []config.TransformerConfig{
					{UID: "visit_patient_id", Method: "id", Column: "patient_id", Identifier: "patient_uid"},
				},
			},
		},
	}
}

func TestEngine_Run_SharesIdentifierAcrossTables(t *testing.T) {
	dir := t.TempDir()
	cfg := twoTableConfig(t, dir)

	e, err := engine.New(cfg, engine.WithSerial(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rep, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Success {
		t.Fatalf("expected success, got %+v", rep.Results)
	}
	if len(rep.ExecutionOrder) != 2 || rep.ExecutionOrder[0] != "patients" || rep.ExecutionOrder[1] != "visits" {
		t.Fatalf("execution order = %v, want [patients visits]", rep.ExecutionOrder)
	}

	outStore, err := ioadapter.NewTableStore("filesystem", ioadapter.Config{"base_path": filepath.Join(dir, "out"), "file_format": "csv"})
	if err != nil {
		t.Fatalf("output store: %v", err)
	}
	patients, err := outStore.ReadSegment(context.Background(), "patients", "")
	if err != nil {
		t.Fatalf("read patients: %v", err)
	}
	visits, err := outStore.ReadSegment(context.Background(), "visits", "")
	if err != nil {
		t.Fatalf("read visits: %v", err)
	}

	patientCol, _ := patients.Column("patient_id")
	visitCol, _ := visits.Column("patient_id")
	if patientCol[0] != visitCol[0] {
		t.Errorf("shared entity 101 should surrogate to the same value in both tables: patients=%v visits=%v", patientCol[0], visitCol[0])
	}
	if patientCol[0] == patientCol[1] {
		t.Errorf("distinct entities must not share a surrogate")
	}
}

func TestEngine_Run_SkipsDownstreamOfFailedTable(t *testing.T) {
	dir := t.TempDir()
	cfg := twoTableConfig(t, dir)
	// Break patients' input so its pipeline run fails.
	if err := os.RemoveAll(filepath.Join(dir, "in", "patients.csv")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	e, err := engine.New(cfg, engine.WithSerial(true), engine.WithContinueOnError(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rep, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Success {
		t.Fatal("expected success=false")
	}
	if rep.Results["patients"].Status != "error" {
		t.Errorf("patients status = %q, want error", rep.Results["patients"].Status)
	}
	if rep.Results["visits"].Status != "skipped" {
		t.Errorf("visits status = %q, want skipped", rep.Results["visits"].Status)
	}
}

func TestEngine_Reverse_ReconstructsSurrogates(t *testing.T) {
	dir := t.TempDir()
	cfg := twoTableConfig(t, dir)

	e, err := engine.New(cfg, engine.WithSerial(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	reverseDir := filepath.Join(dir, "reverse")
	reverseStore, err := ioadapter.NewTableStore("filesystem", ioadapter.Config{"base_path": reverseDir, "file_format": "csv"})
	if err != nil {
		t.Fatalf("reverse store: %v", err)
	}

	e2, err := engine.New(cfg, engine.WithSerial(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rep, err := e2.Reverse(context.Background(), e2.Output, reverseStore)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if !rep.Success {
		t.Fatalf("expected reverse success, got %+v", rep.Results)
	}

	patients, err := reverseStore.ReadSegment(context.Background(), "patients", "")
	if err != nil {
		t.Fatalf("read reversed patients: %v", err)
	}
	col, _ := patients.Column("patient_id")
	if fmt.Sprint(col[0]) != "101" || fmt.Sprint(col[1]) != "202" {
		t.Errorf("reversed patient_id = %v, want [101 202]", col)
	}
}
