package config

import (
	"bufio"
	"os"
	"strings"
)

// Environment variables carrying exchange credentials. They are read at
// login time rather than stored in the yaml config so the file can be
// committed without secrets.
const (
	EnvTeamName = "RTG_TEAM"
	EnvSecret   = "RTG_SECRET"
)

// Credentials returns the team name and secret from the environment.
func Credentials() (team, secret string) {
	return os.Getenv(EnvTeamName), os.Getenv(EnvSecret)
}

// LoadEnv populates the environment from a .env file. Variables already
// set in the process environment win. A missing file is not an error.
func LoadEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return sc.Err()
}
