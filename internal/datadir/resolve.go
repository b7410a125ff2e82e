package datadir

import (
	"errors"
	"io/fs"
	"os"

	"github.com/matheus3301/wpphub/internal/config"
)

// ConfigEnv names the environment variable holding a config file path.
const ConfigEnv = "WPPHUB_CONFIG"

// ResolveConfig loads the configuration using precedence:
// 1. flagPath (--config flag)
// 2. $WPPHUB_CONFIG
// 3. ~/.wpphub/config.toml, if present
// 4. built-in defaults
//
// An explicitly named file must exist. The returned path is empty when the
// defaults were used.
func ResolveConfig(flagPath string) (*config.Config, string, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	cfg, err := config.Load(ConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return cfg, ConfigPath(), nil
}

// ListenAddr picks the HTTP listen address: the --listen flag, then $PORT,
// then the configured address.
func ListenAddr(cfg *config.Config, flagAddr string) string {
	if flagAddr != "" {
		return flagAddr
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return cfg.ListenAddr
}
