package cloud

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Read loads, defaults and validates a clouds configuration file.
func Read(file string) (*Config, error) {
	buf, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	config, err := Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return config, nil
}

func Parse(buf []byte) (*Config, error) {
	var config Config

	decoder := yaml.NewDecoder(bytes.NewReader(buf))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	return &config, nil
}
