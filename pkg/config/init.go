package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// InitConfig writes a sample configuration to the default path.
// Returns the path the file was written to.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration to the given path.
// A random signing key is generated so a fresh install can issue tokens;
// production deployments should replace it via OCTOPUS_AUTH_SIGNING_KEY.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()
	key, err := generateSigningKey()
	if err != nil {
		return err
	}
	cfg.Auth.SigningKey = key

	return SaveConfig(cfg, path)
}

// generateSigningKey returns 32 random bytes hex-encoded.
func generateSigningKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate signing key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
