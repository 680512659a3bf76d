package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret using the *_FILE convention: when
// envName+"_FILE" names a file, its trimmed content wins over envName.
// Returns "" when neither is set.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// MustResolveSecret is ResolveSecret for startup paths; it exits on error
// without printing the secret.
func MustResolveSecret(envName string) string {
	value, err := ResolveSecret(envName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return value
}

// ParseUserList parses "name:password,name2:password2" as used by the
// control API credentials. Malformed entries are skipped.
func ParseUserList(raw string) map[string]string {
	users := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		name, pass, ok := strings.Cut(entry, ":")
		if !ok || name == "" || pass == "" {
			continue
		}
		users[name] = pass
	}
	return users
}
