package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestRunDispatch(t *testing.T) {
	if code := run([]string{"continuityctl"}); code != exitOK {
		t.Fatalf("run without args: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"continuityctl", "version"}); code != exitOK {
		t.Fatalf("run version: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"continuityctl", "unknown"}); code != exitInvalidInput {
		t.Fatalf("run unknown: expected %d got %d", exitInvalidInput, code)
	}
}

func TestMainEntrypoint(t *testing.T) {
	if os.Getenv("CONTINUITYCTL_TEST_MAIN") == "1" {
		os.Args = []string{"continuityctl", "version"}
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMainEntrypoint")
	cmd.Env = append(os.Environ(), "CONTINUITYCTL_TEST_MAIN=1")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run child process: %v", err)
	}
}

func TestStatusAgainstFreshStore(t *testing.T) {
	workDir := t.TempDir()
	storagePath := filepath.Join(workDir, "continuity")

	if code := runStatus([]string{"--storage-path", storagePath, "--json"}); code != exitOK {
		t.Fatalf("status on fresh store: expected %d got %d", exitOK, code)
	}
	if code := runCheckpoints([]string{"--storage-path", storagePath, "--json"}); code != exitOK {
		t.Fatalf("checkpoints on fresh store: expected %d got %d", exitOK, code)
	}
}

func TestRestorePreviewRequiresSession(t *testing.T) {
	workDir := t.TempDir()
	storagePath := filepath.Join(workDir, "continuity")
	if code := runRestorePreview([]string{"--storage-path", storagePath, "--json"}); code != exitInvalidInput {
		t.Fatalf("restore-preview missing --session: expected %d got %d", exitInvalidInput, code)
	}
}

func TestValidateFileAgainstFixtures(t *testing.T) {
	repoRoot := repoRootFromPackageDir(t)
	t.Setenv(schemasDirEnv, filepath.Join(repoRoot, "schemas", "v1"))

	validFixture := filepath.Join(repoRoot, "core", "schema", "testdata", "envelope_valid.json")
	if code := runValidate([]string{"--file", validFixture, "--schema", "action"}); code != exitOK {
		t.Fatalf("validate valid envelope: expected %d got %d", exitOK, code)
	}

	invalidFixture := filepath.Join(repoRoot, "core", "schema", "testdata", "envelope_invalid.json")
	if code := runValidate([]string{"--file", invalidFixture, "--schema", "action"}); code != exitValidateFailed {
		t.Fatalf("validate invalid envelope: expected %d got %d", exitValidateFailed, code)
	}

	if code := runValidate([]string{"--file", validFixture, "--schema", "nonsense"}); code != exitInvalidInput {
		t.Fatalf("validate unknown schema alias: expected %d got %d", exitInvalidInput, code)
	}
}

func TestValidateStreamOnFreshStore(t *testing.T) {
	workDir := t.TempDir()
	storagePath := filepath.Join(workDir, "continuity")
	if code := runStatus([]string{"--storage-path", storagePath, "--json"}); code != exitOK {
		t.Fatalf("status to seed storage dir: expected %d got %d", exitOK, code)
	}
	if code := runValidate([]string{"--storage-path", storagePath, "--json"}); code != exitOK {
		t.Fatalf("validate stream on fresh store: expected %d got %d", exitOK, code)
	}
}

func repoRootFromPackageDir(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}
