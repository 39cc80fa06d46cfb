package stages

import (
	_ "embed"
	"fmt"
	"strings"

	"dealerdesk_backend/internal/leads/domain"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type stageSeed struct {
	Name     string `yaml:"name"`
	Order    int    `yaml:"order"`
	Terminal bool   `yaml:"terminal"`
}

type seedFile struct {
	Stages []stageSeed `yaml:"stages"`
}

// GlobalDefaults returns the built-in global stages in display order.
func GlobalDefaults() ([]domain.Stage, error) {
	return parseDefaults(defaultsYAML)
}

func parseDefaults(raw []byte) ([]domain.Stage, error) {
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse default stages: %w", err)
	}

	out := make([]domain.Stage, 0, len(file.Stages))
	seen := make(map[string]bool, len(file.Stages))
	for _, s := range file.Stages {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("default stage without name")
		}
		key := foldName(name)
		if seen[key] {
			return nil, fmt.Errorf("duplicate default stage %q", name)
		}
		seen[key] = true
		out = append(out, domain.Stage{Name: name, DisplayOrder: s.Order, IsTerminal: s.Terminal})
	}
	return out, nil
}
