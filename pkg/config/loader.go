package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/imposterd/pkg/imposter"
)

// Common errors for imposter file loading.
var (
	ErrFileNotFound     = errors.New("imposter file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidJSON      = errors.New("invalid JSON syntax")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("imposter file is empty")
)

// LoadImposters reads imposter configurations from a JSON or YAML file.
// The format is detected from the extension (.yaml, .yml for YAML,
// otherwise JSON). The document is either {"imposters": [...]} or a bare
// array of imposters. Every entry is validated like a POST /imposters body.
func LoadImposters(path string) ([]*imposter.Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return ParseYAML(data)
	}
	return ParseJSON(data)
}

// ParseJSON parses a JSON imposter document.
func ParseJSON(data []byte) ([]*imposter.Config, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return configsFrom(doc)
}

// ParseYAML parses a YAML imposter document.
func ParseYAML(data []byte) ([]*imposter.Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return configsFrom(doc)
}

func configsFrom(doc any) ([]*imposter.Config, error) {
	var entries []any
	switch v := doc.(type) {
	case []any:
		entries = v
	case map[string]any:
		list, ok := v["imposters"].([]any)
		if !ok {
			return nil, imposter.Configurationf(`"imposters" must be an array`)
		}
		entries = list
	default:
		return nil, imposter.Configurationf("imposter file must hold an object or an array")
	}

	cfgs := make([]*imposter.Config, 0, len(entries))
	for i, entry := range entries {
		cfg, err := imposter.ParseConfigValue(entry)
		if err != nil {
			return nil, fmt.Errorf("imposter %d: %w", i, err)
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}
