package utils

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/knadh/koanf/v2"
	"github.com/matthewmueller/jsonc"
	"gopkg.in/yaml.v3"
)

// JsonC implements a JsonC parser.
type JsonC struct{}

// Unmarshal parses the given JSON bytes.
func (p *JsonC) Unmarshal(b []byte) (map[string]interface{}, error) {
	jsonBytes, err := jsonc.Standardize(b)
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Marshal marshals the given config map to JSON bytes.
func (p *JsonC) Marshal(o map[string]interface{}) ([]byte, error) {
	return json.MarshalIndent(o, "", "  ")
}

// Yaml implements a YAML parser.
type Yaml struct{}

func (p *Yaml) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}

	if out == nil {
		out = make(map[string]interface{})
	}

	return out, nil
}

func (p *Yaml) Marshal(o map[string]interface{}) ([]byte, error) {
	return yaml.Marshal(o)
}

// ConfigParser returns the parser matching the extension of configPath.
func ConfigParser(configPath string) (koanf.Parser, error) {
	switch filepath.Ext(configPath) {
	case ".json", ".jsonc":
		return &JsonC{}, nil
	case ".yaml", ".yml":
		return &Yaml{}, nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Base(configPath))
	}
}
