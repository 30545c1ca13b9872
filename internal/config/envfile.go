package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// ParseEnvFile reads KEY=VALUE pairs from a dotenv file without touching
// the process environment.
func ParseEnvFile(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return vars, nil
}

// ApplyEnvFile exports the file's variables that are not already set, so
// the real environment always wins. It returns the keys it exported.
func ApplyEnvFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	vars, err := ParseEnvFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets env file: %w", err)
	}
	var set []string
	for k, v := range vars {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return set, fmt.Errorf("setting %s: %w", k, err)
		}
		set = append(set, k)
	}
	return set, nil
}
