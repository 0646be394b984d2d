package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSource reads units from a YAML snapshot:
//
//	units:
//	  - id: "000003"
//	  - id: "000026"
//	    label: nwb2bids-0.6
type FileSource struct {
	path string
}

// NewFileSource returns a FileSource reading path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type snapshot struct {
	Units []Unit `yaml:"units"`
}

// List parses the snapshot. Every entry must carry an id.
func (s *FileSource) List(context.Context) ([]Unit, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", s.path, err)
	}
	units := make([]Unit, 0, len(snap.Units))
	for i, u := range snap.Units {
		u.ID = strings.TrimSpace(u.ID)
		u.Label = strings.TrimSpace(u.Label)
		if u.ID == "" {
			return nil, fmt.Errorf("catalog file %s: entry %d has no id", s.path, i+1)
		}
		units = append(units, u)
	}
	return units, nil
}
