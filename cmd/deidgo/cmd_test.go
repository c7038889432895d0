package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	inDir := filepath.Join(dir, "in")
	if err := os.MkdirAll(inDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inDir, "patients.csv"), []byte("patient_id\n101\n202\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	content := `name: cmd_test
deid_config:
  time_shift:
    method: shift_by_days
    min_range: 1
    max_range: 5
io:
  data:
    input_config:
      io_type: filesystem
      base_path: ` + inDir + `
      file_format: csv
    output_config:
      io_type: filesystem
      base_path: ` + filepath.Join(dir, "out") + `
      file_format: csv
  reference:
    config:
      io_type: filesystem
      base_path: ` + filepath.Join(dir, "refs") + `
tables:
  patients:
    transformers:
      - uid: patient_id
        method: id
        column: patient_id
        identifier: patient_uid
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func execCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckSyntax_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := writeTestConfig(t, dir)

	out, err := execCommand(t, "check-syntax", configPath)
	if err != nil {
		t.Fatalf("check-syntax: %v", err)
	}
	if !bytes.Contains([]byte(out), []byte("OK")) {
		t.Errorf("output = %q, want it to contain OK", out)
	}
}

func TestLint_CleanConfigReportsNoIssues(t *testing.T) {
	dir := t.TempDir()
	configPath := writeTestConfig(t, dir)

	out, err := execCommand(t, "lint", configPath)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if !bytes.Contains([]byte(out), []byte("no issues found")) {
		t.Errorf("output = %q, want no issues found", out)
	}
}

func TestInit_RefusesToOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "sample.yaml")
	if err := os.WriteFile(outputPath, []byte("existing"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if _, err := execCommand(t, "init", outputPath); err == nil {
		t.Fatal("expected init to refuse overwriting an existing file")
	}

	if _, err := execCommand(t, "init", outputPath, "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func TestRun_WritesDeidentifiedOutput(t *testing.T) {
	// runs the run command end to end and checks that the output table is written
	dir := t.TempDir()
	configPath := writeTestConfig(t, dir)

	if _, err := execCommand(t, "run", configPath); err != nil {
		t.Fatalf("run: %v", err)
	}

	outDir := filepath.Join(dir, "out")
	if _, err := os.Stat(filepath.Join(outDir, "patients.csv")); err != nil {
		t.Errorf("expected de-identified output, stat error: %v", err)
	}
}
