package failures

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"bidsmirror/internal/fileutil"
)

// Record is the persisted account of one unit's failure in one pass.
type Record struct {
	UnitID     string    `json:"unit_id"`
	Label      string    `json:"label,omitempty"`
	FaultKind  string    `json:"fault_kind"`
	Message    string    `json:"message"`
	Trace      string    `json:"trace,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store reads and writes failure records under one directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the records directory.
func (s *Store) Dir() string { return s.dir }

// Path is where the record for unitID and label lives.
func (s *Store) Path(unitID, label string) string {
	return filepath.Join(s.dir, FileName(unitID, label))
}

// FileName returns "<unit>.json" or "<unit>_<label>.json" with the label
// reduced to filename-safe characters.
func FileName(unitID, label string) string {
	label = strings.Trim(unsafeLabel.ReplaceAllString(label, "-"), "-.")
	if label == "" {
		return unitID + ".json"
	}
	return unitID + "_" + label + ".json"
}

// Write persists rec, replacing any earlier record for the same unit and label.
func (s *Store) Write(rec Record) (string, error) {
	if strings.TrimSpace(rec.UnitID) == "" {
		return "", errors.New("failure record requires a unit id")
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode failure record: %w", err)
	}
	data = append(data, '\n')
	path := s.Path(rec.UnitID, rec.Label)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Clear removes the record for unitID and label if one exists.
func (s *Store) Clear(unitID, label string) (bool, error) {
	err := os.Remove(s.Path(unitID, label))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("clear failure record: %w", err)
}

// ClearUnit removes the records of every label of unitID and returns how
// many were removed.
func (s *Store) ClearUnit(unitID string) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read failures dir: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (name != unitID+".json" && !strings.HasPrefix(name, unitID+"_")) {
			continue
		}
		path := filepath.Join(s.dir, name)
		var rec Record
		if data, err := os.ReadFile(path); err != nil || json.Unmarshal(data, &rec) != nil || rec.UnitID != unitID {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("clear failure record: %w", err)
		}
		removed++
	}
	return removed, nil
}

// List returns every readable record, ordered by unit id then label.
// Files that cannot be parsed are reported in skipped.
func (s *Store) List() (records []Record, skipped []string, err error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read failures dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			skipped = append(skipped, entry.Name())
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil || rec.UnitID == "" {
			skipped = append(skipped, entry.Name())
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].UnitID != records[j].UnitID {
			return records[i].UnitID < records[j].UnitID
		}
		return records[i].Label < records[j].Label
	})
	return records, skipped, nil
}
