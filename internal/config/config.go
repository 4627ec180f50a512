package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ListenAddr    string   `yaml:"listenAddr"`
	DataPaths     []string `yaml:"dataPaths"`
	StatePath     string   `yaml:"statePath"`
	MinimumFreeGB int      `yaml:"minimumFreeGB"`
}

// GetConfig reads a YAML config file and fills in defaults. A missing
// file yields the defaults. Positional arguments overwrite the file:
// args[0] is the listen address, args[1] the data path, args[2] the
// client state path.
func GetConfig(path string, args []string) (Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return config, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if config.ListenAddr == "" {
		config.ListenAddr = "localhost:4242"
	}

	if len(config.DataPaths) == 0 {
		config.DataPaths = []string{"./sealdex-data"}
	}

	if config.StatePath == "" {
		config.StatePath = "./sealdex-state.json"
	}

	if config.MinimumFreeGB == 0 {
		config.MinimumFreeGB = 1
	}

	// overwrite with cli arguments if provided
	if len(args) > 0 {
		config.ListenAddr = args[0]
	}

	if len(args) > 1 {
		config.DataPaths = []string{args[1]}
	}

	if len(args) > 2 {
		config.StatePath = args[2]
	}

	return config, nil
}
