package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	yaml "sigs.k8s.io/yaml/goyaml.v3"

	fskit "github.com/italypaleale/timekeeper/fs"
)

const (
	// Env var with the path to the config file
	DefaultEnvVar = "TIMEKEEPER_CONFIG"
	// Name of the folder, in the home directory and in /etc, where to look for the config file
	DefaultDirName = "timekeeper"
)

// LoadConfigOpts contains options for LoadConfig
type LoadConfigOpts struct {
	EnvVar  string
	DirName string
}

// ConfigDest is the interface for objects the configuration is loaded into
type ConfigDest interface {
	SetLoadedConfigPath(path string)
}

// Load loads the timekeeperd configuration from the default locations and processes it.
func Load() (*Config, error) {
	cfg := &Config{}
	err := LoadConfig(cfg, LoadConfigOpts{
		EnvVar:  DefaultEnvVar,
		DirName: DefaultDirName,
	})
	if err != nil {
		return nil, err
	}

	err = cfg.Process()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfig finds the config file and decodes it into dst.
// The file is looked up in the path set in the env var opts.EnvVar; otherwise, it's searched in the current folder, "~/.<opts.DirName>", and "/etc/<opts.DirName>".
func LoadConfig(dst ConfigDest, opts LoadConfigOpts) error {
	// Get the path to the config.yaml
	// First, try with the env var
	configFile := os.Getenv(opts.EnvVar)
	if configFile != "" {
		exists, _ := fskit.FileExists(configFile)
		if !exists {
			return NewConfigError("Environmental variable "+opts.EnvVar+" points to a file that does not exist", "Error loading config file")
		}
	} else {
		// Look in the default paths
		searchPaths := []string{".", "~/." + opts.DirName, "/etc/" + opts.DirName}

		// Note: It's .yaml not .yml! https://yaml.org/faq.html (insert "it's leviOsa, not levioSA" meme)
		configFile = findConfigFile("config.yaml", searchPaths...)
		if configFile == "" {
			// Ok, if you really, really want to use ".yml"....
			configFile = findConfigFile("config.yml", searchPaths...)
		}

		// Config file not found
		if configFile == "" {
			return NewConfigError("Could not find a configuration file config.yaml in the current folder, '~/."+opts.DirName+"', or '/etc/"+opts.DirName+"'", "Error loading config file")
		}
	}

	// Load the configuration
	// Note that configFile can be empty
	err := loadConfigFile(dst, configFile)
	if err != nil {
		return NewConfigError(err, "Error loading config file")
	}
	dst.SetLoadedConfigPath(configFile)

	return nil
}

// Loads the configuration from a file and from the environment.
// "dst" must be a pointer to a struct.
func loadConfigFile(dst any, filePath string) error {
	f, err := os.Open(filePath) //nolint:gosec
	if err != nil {
		return fmt.Errorf("failed to open config file '%s': %w", filePath, err)
	}
	defer f.Close() //nolint:errcheck

	yamlDec := yaml.NewDecoder(f)
	yamlDec.KnownFields(true)
	err = yamlDec.Decode(dst)
	if err != nil {
		return fmt.Errorf("failed to decode config file '%s': %w", filePath, err)
	}

	return nil
}

func findConfigFile(fileName string, searchPaths ...string) string {
	for _, path := range searchPaths {
		if path == "" {
			continue
		}

		p, _ := homedir.Expand(path)
		if p != "" {
			path = p
		}

		search := filepath.Join(path, fileName)
		exists, _ := fskit.FileExists(search)
		if exists {
			return search
		}
	}

	return ""
}
