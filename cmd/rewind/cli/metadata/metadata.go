// Package metadata persists the binding between code checkpoints and
// transcript positions: one record per checkpoint that has chat context,
// keyed by checkpoint name in a single atomically-written mapping.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rewindio/cli/cmd/rewind/cli/jsonutil"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
)

// Record binds one checkpoint to its transcript position.
type Record struct {
	AgentKind         string `json:"agentKind"`
	SessionID         string `json:"sessionId"`
	TranscriptPath    string `json:"transcriptPath"`
	MessageIdentifier string `json:"messageIdentifier"`
	MessageIndex      int    `json:"messageIndex"`
	UserPrompt        string `json:"userPrompt,omitempty"`
	CapturedAtISO     string `json:"capturedAtISO"`
}

// Linker maintains the checkpoint-name → record mapping.
//
// Writes go through write-temp-then-rename, so a reader always sees either
// the old or the new complete mapping. Concurrent creators serialize via the
// rename; a later writer overwrites the view it loaded, which is acceptable
// because records are keyed by globally unique checkpoint names.
type Linker struct {
	path string
}

// NewLinker returns a Linker over <storageDir>/conversation/metadata.json.
func NewLinker(storageDir string) *Linker {
	return &Linker{path: paths.MetadataFile(storageDir)}
}

// load reads the current mapping. A missing file is an empty mapping.
func (l *Linker) load() (map[string]Record, error) {
	data, err := os.ReadFile(l.path) //nolint:gosec // path is under the storage dir
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	records := map[string]Record{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	return records, nil
}

// save writes the mapping atomically.
func (l *Linker) save(records map[string]Record) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	return jsonutil.WriteFileAtomic(l.path, records)
}

// Add stores the record for a checkpoint name.
func (l *Linker) Add(checkpointName string, rec Record) error {
	records, err := l.load()
	if err != nil {
		return err
	}
	records[checkpointName] = rec
	return l.save(records)
}

// Get returns the record for a checkpoint name.
func (l *Linker) Get(checkpointName string) (Record, bool, error) {
	records, err := l.load()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := records[checkpointName]
	return rec, ok, nil
}

// Remove drops the record for a checkpoint name. Removing an absent record
// is a no-op.
func (l *Linker) Remove(checkpointName string) error {
	records, err := l.load()
	if err != nil {
		return err
	}
	if _, ok := records[checkpointName]; !ok {
		return nil
	}
	delete(records, checkpointName)
	return l.save(records)
}

// List returns the full mapping.
func (l *Linker) List() (map[string]Record, error) {
	return l.load()
}

// Sweep removes records whose checkpoint is no longer in validNames.
// Returns the number of records removed.
func (l *Linker) Sweep(validNames []string) (int, error) {
	records, err := l.load()
	if err != nil {
		return 0, err
	}

	valid := make(map[string]bool, len(validNames))
	for _, n := range validNames {
		valid[n] = true
	}

	removed := 0
	for name := range records {
		if !valid[name] {
			delete(records, name)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, l.save(records)
}
