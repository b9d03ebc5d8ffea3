// Package session provides kernel session providers: an in-process session
// backed by a kernelspec catalog, and a JSON-RPC client/server pair for
// sessions hosted by another process.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lexcodex/blockkernel/framework"
)

// kernelJSON is the on-disk kernelspec written by kernel installers.
type kernelJSON struct {
	Argv        []string `json:"argv"`
	DisplayName string   `json:"display_name"`
	Language    string   `json:"language"`
}

// LoadKernelSpecs scans kernelspec directories laid out as
// <dir>/<kernel>/kernel.json. Kernels found in earlier directories win;
// missing directories are skipped.
func LoadKernelSpecs(dirs ...string) (map[string]framework.KernelSpec, error) {
	specs := make(map[string]framework.KernelSpec)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			name := entry.Name()
			if _, seen := specs[name]; seen {
				continue
			}
			spec, err := readKernelJSON(filepath.Join(dir, name, "kernel.json"))
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return nil, err
			}
			spec.Name = name
			specs[name] = spec
		}
	}
	return specs, nil
}

func readKernelJSON(path string) (framework.KernelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return framework.KernelSpec{}, err
	}
	var raw kernelJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return framework.KernelSpec{}, fmt.Errorf("%s: %w", path, err)
	}
	return framework.KernelSpec{DisplayName: raw.DisplayName, Language: raw.Language}, nil
}
