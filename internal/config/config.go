// Package config is used to load the configuration file
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"
	"github.com/spf13/viper"
)

const defaultCacheSize = 128

type info struct {
	Arch     string `mapstructure:"arch"`
	JSON     bool   `mapstructure:"json"`
	Resolved bool   `mapstructure:"resolved"`
}

type deps struct {
	Arch      string   `mapstructure:"arch"`
	Depth     int      `mapstructure:"depth"`
	CacheSize int      `mapstructure:"cache-size"`
	Fallback  []string `mapstructure:"fallback"`
	SDKRoot   string   `mapstructure:"sdk-root"`
	Strict    bool     `mapstructure:"strict"`
	Missing   bool     `mapstructure:"missing"`
	JSON      bool     `mapstructure:"json"`
	Why       string   `mapstructure:"why"`
}

// Config is the configuration struct
type Config struct {
	Verbose bool `mapstructure:"verbose"`
	Color   bool `mapstructure:"color"`
	Info    info `mapstructure:"info"`
	Deps    deps `mapstructure:"deps"`
}

// DefaultFallbackPaths mirrors dyld's DYLD_FALLBACK_LIBRARY_PATH default.
func DefaultFallbackPaths() []string {
	paths := []string{"/usr/local/lib", "/usr/lib"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append([]string{filepath.Join(home, "lib")}, paths...)
	}
	return paths
}

func (c *Config) verify() error {
	if c.Deps.Depth < 0 {
		return fmt.Errorf("config: deps.depth must not be negative (got %d)", c.Deps.Depth)
	}
	if c.Deps.CacheSize < 0 {
		return fmt.Errorf("config: deps.cache-size must not be negative (got %d)", c.Deps.CacheSize)
	} else if c.Deps.CacheSize == 0 {
		c.Deps.CacheSize = defaultCacheSize
	}
	if len(c.Deps.Fallback) == 0 {
		c.Deps.Fallback = DefaultFallbackPaths()
	}
	if c.Deps.SDKRoot != "" {
		fi, err := os.Stat(c.Deps.SDKRoot)
		if err != nil {
			return fmt.Errorf("config: invalid deps.sdk-root: %v", err)
		} else if !fi.IsDir() {
			return fmt.Errorf("config: deps.sdk-root %s is not a directory", c.Deps.SDKRoot)
		}
		c.Deps.SDKRoot = filepath.Clean(c.Deps.SDKRoot)
	}

	return nil
}

// decodeHook splits list settings given as a single string (an env var or a
// scalar in the config file) on the OS path list separator, the way
// DYLD_FALLBACK_LIBRARY_PATH is written.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(string(os.PathListSeparator)),
	)
}

// Schema returns the JSON schema of the config file.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		FieldNameTag:               "mapstructure",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := r.Reflect(&Config{})
	schema.Description = "execbin configuration definition file"
	return schema
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c *Config

	if err := viper.Unmarshal(&c, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}
	if c == nil {
		c = &Config{}
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}
