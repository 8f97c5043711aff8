package config

import (
	"os"
	"path/filepath"
)

const defaultAPIURL = "http://localhost:8080"

const tokenFileName = ".equip_ledger_token"

// APIURL returns the base URL for the Equipment Ledger API.
// It can be overridden with the EQUIP_LEDGER_API_URL environment variable.
func APIURL() string {
	if v := os.Getenv("EQUIP_LEDGER_API_URL"); v != "" {
		return v
	}
	return defaultAPIURL
}

// SaveToken stores the JWT token in the user's home directory for later CLI calls.
func SaveToken(token string) error {
	return os.WriteFile(tokenPath(), []byte(token), 0600)
}

// ReadToken loads the locally stored JWT token.
func ReadToken() (string, error) {
	data, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RemoveToken deletes the locally stored JWT token.
func RemoveToken() error {
	return os.Remove(tokenPath())
}

func tokenPath() string {
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, tokenFileName)
}
