package toolboxes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lexcodex/blockkernel/framework"
)

// IsToolboxFile reports whether the path has a toolbox file extension.
func IsToolboxFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFile reads a toolbox file. Files with an apiVersion are manifests and
// take their name from metadata.name; anything else is a bare toolbox named
// after the file stem.
func LoadFile(path string) (string, *framework.Toolbox, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	name, tb, err := Parse(path, data)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	return name, tb, nil
}

// Parse decodes toolbox file contents. The path selects YAML or JSON
// decoding and supplies the fallback name.
func Parse(path string, data []byte) (string, *framework.Toolbox, error) {
	jsonData := data
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var generic interface{}
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return "", nil, err
		}
		converted, err := json.Marshal(generic)
		if err != nil {
			return "", nil, err
		}
		jsonData = converted
	}
	var header map[string]json.RawMessage
	if err := json.Unmarshal(jsonData, &header); err == nil {
		if _, ok := header["apiVersion"]; ok {
			var manifest ToolboxManifest
			if err := json.Unmarshal(jsonData, &manifest); err != nil {
				return "", nil, err
			}
			if err := manifest.Validate(); err != nil {
				return "", nil, err
			}
			tb, err := manifest.Toolbox()
			if err != nil {
				return "", nil, err
			}
			return manifest.Metadata.Name, tb, nil
		}
	}
	tb, err := framework.ParseToolbox(jsonData)
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), tb, nil
}

// LoadDir registers every toolbox file in dir, in file name order. Files
// that fail to load are skipped and reported in the joined error; a missing
// directory is not an error.
func LoadDir(reg *framework.Registry, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var names []string
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !IsToolboxFile(entry.Name()) {
			continue
		}
		name, tb, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reg.Register(name, tb)
		names = append(names, name)
	}
	return names, errors.Join(errs...)
}
