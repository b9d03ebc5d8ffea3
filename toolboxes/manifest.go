// Package toolboxes loads toolbox definitions from disk into a registry and
// keeps them fresh while the files change.
package toolboxes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lexcodex/blockkernel/framework"
)

// ManifestKind is the only kind accepted in toolbox manifests.
const ManifestKind = "Toolbox"

// ToolboxManifest wraps a toolbox with identity metadata.
type ToolboxManifest struct {
	APIVersion string           `yaml:"apiVersion" json:"apiVersion"`
	Kind       string           `yaml:"kind" json:"kind"`
	Metadata   ManifestMetadata `yaml:"metadata" json:"metadata"`
	Spec       ManifestSpec     `yaml:"spec" json:"spec"`
}

// ManifestMetadata describes identity fields.
type ManifestMetadata struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// ManifestSpec holds the toolbox itself.
type ManifestSpec struct {
	Toolbox json.RawMessage `json:"toolbox"`
}

// Validate enforces manifest semantics.
func (m *ToolboxManifest) Validate() error {
	if m.APIVersion == "" {
		return fmt.Errorf("manifest missing apiVersion")
	}
	if !strings.EqualFold(m.Kind, ManifestKind) {
		return fmt.Errorf("manifest kind must be %s, got %q", ManifestKind, m.Kind)
	}
	if m.Metadata.Name == "" {
		return fmt.Errorf("manifest missing metadata.name")
	}
	if len(m.Spec.Toolbox) == 0 || string(m.Spec.Toolbox) == "null" {
		return fmt.Errorf("manifest %s missing spec.toolbox", m.Metadata.Name)
	}
	return nil
}

// Toolbox parses the manifest's toolbox.
func (m *ToolboxManifest) Toolbox() (*framework.Toolbox, error) {
	tb, err := framework.ParseToolbox(m.Spec.Toolbox)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", m.Metadata.Name, err)
	}
	return tb, nil
}
