package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RyanBlaney/sonido-gunshot/detection/loader"
	"github.com/RyanBlaney/sonido-gunshot/logging"
)

// writeConfig disables the spectrogram tier and points the classical tier at
// an empty directory, so only the rule engine can load.
func writeConfig(t *testing.T) string {
	return writeConfigAt(t, "error")
}

func writeConfigAt(t *testing.T, level string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gunshot.yaml")
	doc := "log_level: " + level + "\nspectrogram:\n  enabled: false\nclassical:\n  dir: " + filepath.ToSlash(dir) + "\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := executeSplit(t, "", args...)
	return stdout, err
}

// executeSplit runs the CLI with stdin and returns stdout and stderr apart.
func executeSplit(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	prev := logging.GetGlobalLogger()
	t.Cleanup(func() {
		logging.SetGlobalLogger(prev)
		configPath, envFile, logLevel = "", ".env", ""
		modelStrict, analyzeJSON = false, false
		batchOutput, batchWorkers = "", 0
	})

	var out, errOut bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestModelInfoFallsBackToRules(t *testing.T) {
	out, err := execute(t, "model", "info", "--config", writeConfig(t))
	if err != nil {
		t.Fatalf("model info: %v", err)
	}

	var info loader.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if info.Backend != "rule" || !info.Loaded {
		t.Errorf("unexpected info: %+v", info)
	}
	if len(info.Failures) != 1 || info.Failures[0].Backend != "classical" {
		t.Errorf("failures = %+v", info.Failures)
	}
}

func TestModelInfoStdoutIsJSONAtInfoLevel(t *testing.T) {
	stdout, stderr, err := executeSplit(t, "", "model", "info", "--config", writeConfigAt(t, "info"))
	if err != nil {
		t.Fatalf("model info: %v", err)
	}

	var info loader.Info
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if info.Backend != "rule" {
		t.Errorf("backend = %q", info.Backend)
	}
	if !strings.Contains(stderr, "Model ready") {
		t.Errorf("info logs should go to stderr, got %q", stderr)
	}
}

func TestAnalyzeEmptyStdin(t *testing.T) {
	stdout, stderr, err := executeSplit(t, "", "analyze", "-", "--json", "--config", writeConfigAt(t, "info"))
	if err == nil {
		t.Fatal("empty stdin should fail")
	}
	if stdout != "" {
		t.Errorf("stdout should stay empty, got %q", stdout)
	}
	if !strings.Contains(stderr, "-: ") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestModelCheckStrict(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "model", "check", "--config", cfg)
	if err != nil {
		t.Fatalf("model check: %v", err)
	}
	if !strings.Contains(out, "backend: rule") {
		t.Errorf("unexpected output: %s", out)
	}

	if _, err := execute(t, "model", "check", "--strict", "--config", cfg); err == nil {
		t.Error("strict check should fail when only rules are available")
	}
}

func TestBatchEmptyDirectory(t *testing.T) {
	out, err := execute(t, "batch", t.TempDir(), "--config", writeConfig(t))
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if !strings.Contains(out, "No audio files found.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestLoadEnv(t *testing.T) {
	if err := loadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing dotenv file should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("GUNSHOT_TEST_VALUE=42\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GUNSHOT_TEST_VALUE", "")
	os.Unsetenv("GUNSHOT_TEST_VALUE")

	if err := loadEnv(path); err != nil {
		t.Fatalf("loadEnv: %v", err)
	}
	if got := os.Getenv("GUNSHOT_TEST_VALUE"); got != "42" {
		t.Errorf("GUNSHOT_TEST_VALUE = %q", got)
	}
}
