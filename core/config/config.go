package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml"
)

const (
	containerConfigDir = "/config"
	defaultFileName    = "config.toml"
)

var ErrSampleWritten = errors.New("config file not found, a sample was written")

type ConfigFile struct {
	tree *toml.Tree
}

type ConfigSection struct {
	tree *toml.Tree
}

func NewConfigFromFile(path string) (*ConfigFile, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &ConfigFile{
		tree: tree,
	}, nil
}

func NewConfigFromString(content string) (*ConfigFile, error) {
	tree, err := toml.Load(content)
	if err != nil {
		return nil, err
	}
	return &ConfigFile{
		tree: tree,
	}, nil
}

// ResolvePath picks the config file location. Inside a container the file
// must live in /config, and a missing /config directory is an error.
func ResolvePath(flagPath string, inContainer bool) (string, error) {
	if !inContainer {
		if flagPath != "" {
			return flagPath, nil
		}
		return defaultFileName, nil
	}

	info, err := os.Stat(containerConfigDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("config directory %s does not exist, mount a volume at %s", containerConfigDir, containerConfigDir)
	}
	if flagPath != "" {
		return filepath.Join(containerConfigDir, filepath.Base(flagPath)), nil
	}
	return filepath.Join(containerConfigDir, defaultFileName), nil
}

// Load reads the config file at path. A missing file is replaced by a
// commented sample and ErrSampleWritten is returned.
func Load(path string) (*ConfigFile, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteSample(path); err != nil {
			return nil, fmt.Errorf("writing sample config to %s: %w", path, err)
		}
		return nil, fmt.Errorf("%s: %w", path, ErrSampleWritten)
	}
	return NewConfigFromFile(path)
}

func WriteSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

func (file *ConfigFile) Section(name string) (*ConfigSection, error) {
	res := file.tree.Get(name)
	subTree, ok := res.(*toml.Tree)
	if !ok {
		return nil, fmt.Errorf("section '%s' not found", name)
	}
	return &ConfigSection{
		tree: subTree,
	}, nil
}

func (file *ConfigFile) HasSection(name string) bool {
	_, ok := file.tree.Get(name).(*toml.Tree)
	return ok
}

// Sections returns the entries of an array of tables, e.g. [[cost_sensors]].
func (file *ConfigFile) Sections(name string) ([]*ConfigSection, error) {
	return sectionsFrom(file.tree, name)
}

func (section *ConfigSection) Sections(key string) ([]*ConfigSection, error) {
	return sectionsFrom(section.tree, key)
}

func sectionsFrom(tree *toml.Tree, key string) ([]*ConfigSection, error) {
	value := tree.Get(key)
	if value == nil {
		return []*ConfigSection{}, fmt.Errorf("key '%s' not found", key)
	}
	trees, ok := value.([]*toml.Tree)
	if !ok {
		return []*ConfigSection{}, fmt.Errorf("key '%s' is not an array of tables", key)
	}
	sections := make([]*ConfigSection, 0, len(trees))
	for _, t := range trees {
		sections = append(sections, &ConfigSection{tree: t})
	}
	return sections, nil
}

func (section *ConfigSection) GetString(key string) (string, error) {
	value := section.tree.Get(key)
	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("key '%s' is not a string", key)
	}
	return strValue, nil
}

func (section *ConfigSection) GetStringDefault(key string, fallback string) string {
	if value, err := section.GetString(key); err == nil && value != "" {
		return value
	}
	return fallback
}

func (section *ConfigSection) GetStringMap(key string) (map[string]string, error) {
	value := section.tree.Get(key)
	if value == nil {
		return make(map[string]string), fmt.Errorf("key '%s' not found", key)
	}
	valueTree, ok := value.(*toml.Tree)
	if !ok {
		return make(map[string]string), fmt.Errorf("key '%s' is not a tree", key)
	}
	result := make(map[string]string)
	for k, v := range valueTree.ToMap() {
		strValue, ok := v.(string)
		if ok {
			result[k] = strValue
		}
	}
	return result, nil
}

func (section *ConfigSection) GetStringSlice(key string) ([]string, error) {
	value := section.tree.GetArray(key)
	strValue, ok := value.([]string)
	if !ok {
		return []string{}, fmt.Errorf("key '%s' is not an array of strings", key)
	}
	return strValue, nil
}

func (section *ConfigSection) GetInt64(key string) (int64, error) {
	value := section.tree.Get(key)
	intValue, ok := value.(int64)
	if !ok {
		return 0, fmt.Errorf("key '%s' is not an int64", key)
	}
	return intValue, nil
}

func (section *ConfigSection) GetInt(key string) (int, error) {
	value, err := section.GetInt64(key)
	if err != nil {
		return 0, err
	}
	return int(value), nil
}

func (section *ConfigSection) GetIntDefault(key string, fallback int) int {
	if value, err := section.GetInt(key); err == nil {
		return value
	}
	return fallback
}

// GetFloat64 accepts TOML floats, integers, and numeric strings.
func (section *ConfigSection) GetFloat64(key string) (float64, error) {
	switch value := section.tree.Get(key).(type) {
	case float64:
		return value, nil
	case int64:
		return float64(value), nil
	case string:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("key '%s' is not a number", key)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("key '%s' is not a number", key)
	}
}

func (section *ConfigSection) GetFloat64Default(key string, fallback float64) float64 {
	if value, err := section.GetFloat64(key); err == nil {
		return value
	}
	return fallback
}

func (section *ConfigSection) GetBool(key string) (bool, error) {
	value := section.tree.Get(key)
	boolValue, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("key '%s' is not a bool", key)
	}
	return boolValue, nil
}

func (section *ConfigSection) Has(key string) bool {
	return section.tree.Has(key)
}
