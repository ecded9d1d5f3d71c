package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func TestLoadEnvSetsVariables(t *testing.T) {
	t.Setenv(EnvTeamName, "")
	os.Unsetenv(EnvTeamName)
	t.Setenv(EnvSecret, "")
	os.Unsetenv(EnvSecret)

	path := writeEnvFile(t, `
# credentials
RTG_TEAM=alpha
RTG_SECRET="s3cret value"
`)
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	team, secret := Credentials()
	if team != "alpha" {
		t.Fatalf("team = %q", team)
	}
	if secret != "s3cret value" {
		t.Fatalf("expected quotes stripped, got %q", secret)
	}
}

func TestLoadEnvExistingWins(t *testing.T) {
	t.Setenv(EnvTeamName, "from-process")
	path := writeEnvFile(t, "RTG_TEAM=from-file\n")
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if team, _ := Credentials(); team != "from-process" {
		t.Fatalf("process env overridden: %q", team)
	}
}

func TestLoadEnvSkipsJunkLines(t *testing.T) {
	t.Setenv("ENV_TEST_KEY", "")
	os.Unsetenv("ENV_TEST_KEY")
	path := writeEnvFile(t, `
# comment
not a pair
=no-key
ENV_TEST_KEY='quoted'
`)
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("ENV_TEST_KEY"); got != "quoted" {
		t.Fatalf("got %q", got)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
}
