// Package config loads the agent's TOML configuration and the launch
// environment it seeds the executor with.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/guestexec/internal/guestfs"
	"github.com/loykin/guestexec/internal/logger"
	"github.com/spf13/viper"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	// Socket is the unix socket the request transport listens on.
	Socket string `toml:"socket" mapstructure:"socket"`
	// DebugAddr enables the HTTP debug/metrics listener when non-empty.
	DebugAddr string `toml:"debug_addr" mapstructure:"debug_addr"`
	// TempDir overrides the staging directory for scripts and temp files.
	TempDir string `toml:"temp_dir" mapstructure:"temp_dir"`
	// MaxResultSize bounds one listing reply; zero means the default.
	MaxResultSize int `toml:"max_result_size" mapstructure:"max_result_size"`
	// AllowConsoleUser permits console-user credentials on a privileged agent.
	AllowConsoleUser bool `toml:"allow_console_user" mapstructure:"allow_console_user"`
	// HistoryDSN selects the completion history sink; empty disables it.
	HistoryDSN string `toml:"history_dsn" mapstructure:"history_dsn"`

	Env      []string `toml:"env" mapstructure:"env"`
	EnvFiles []string `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool     `toml:"use_os_env" mapstructure:"use_os_env"`

	Log logger.Config `toml:"log" mapstructure:"log"`
}

// Defaults applied after unmarshalling.
const (
	DefaultSocket = "/run/guestexec.sock"
)

// Load parses the TOML file at path and applies defaults.
func Load(path string) (FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return FileConfig{}, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return FileConfig{}, err
	}
	if fc.Socket == "" {
		fc.Socket = DefaultSocket
	}
	if fc.MaxResultSize < 0 {
		return FileConfig{}, fmt.Errorf("max_result_size must not be negative")
	}
	if fc.MaxResultSize == 0 {
		fc.MaxResultSize = guestfs.DefaultMaxResultSize
	}
	return fc, nil
}

// LaunchEnv merges the environment the executor hands to launched programs.
// Precedence: OS env (when enabled) provides the base; then env_files in
// order; then the top-level env list overrides last.
func (fc FileConfig) LaunchEnv() ([]string, error) {
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
