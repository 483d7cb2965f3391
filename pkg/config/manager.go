package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/auriora/timelocker/pkg/errs"
)

const documentFileName = "timelocker.json"

// Manager owns a single Document per process (§5 "Configuration
// document: single owner per process"); readers get independent copies
// so mutation must go through Update.
type Manager struct {
	mu   sync.RWMutex
	path string
	doc  Document
}

// Open loads <configDir>/timelocker.json, creating it with
// DefaultDocument() if absent.
func Open(configDir string) (*Manager, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "failed to create configuration directory", err)
	}
	path := filepath.Join(configDir, documentFileName)
	m := &Manager{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		m.doc = DefaultDocument()
		if err := m.persist(); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "failed to read configuration document", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "failed to parse configuration document", err)
	}
	m.doc = doc
	return m, nil
}

// Snapshot returns a copy of the current document; mutating it has no
// effect on the manager's state (§5 "readers receive snapshot copies").
func (m *Manager) Snapshot() Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneDocument(m.doc)
}

// Update applies fn to a copy of the current document, validates the
// result, and persists it atomically if valid.
func (m *Manager) Update(fn func(*Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := cloneDocument(m.doc)
	fn(&next)
	if issues := Validate(next); len(issues) > 0 {
		return errs.Newf(errs.KindConfiguration, "invalid configuration: %v", issues)
	}
	m.doc = next
	return m.persist()
}

func (m *Manager) persist() error {
	data, err := json.MarshalIndent(m.doc, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindConfiguration, "failed to serialize configuration document", err)
	}
	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errs.Wrap(errs.KindConfiguration, "failed to stage configuration write", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.Wrap(errs.KindConfiguration, "failed to write configuration document", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.KindConfiguration, "failed to finalize configuration write", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.KindConfiguration, "failed to commit configuration document", err)
	}
	return nil
}

func cloneDocument(d Document) Document {
	out := Document{
		Repositories:  make(map[string]RepositoryEntry, len(d.Repositories)),
		BackupTargets: make(map[string]BackupTargetEntry, len(d.BackupTargets)),
		Settings:      d.Settings,
		Security:      d.Security,
	}
	for k, v := range d.Repositories {
		fields := make(map[string]string, len(v.Fields))
		for fk, fv := range v.Fields {
			fields[fk] = fv
		}
		v.Fields = fields
		out.Repositories[k] = v
	}
	for k, v := range d.BackupTargets {
		v.Paths = append([]string(nil), v.Paths...)
		v.IncludePatterns = append([]string(nil), v.IncludePatterns...)
		v.ExcludePatterns = append([]string(nil), v.ExcludePatterns...)
		out.BackupTargets[k] = v
	}
	return out
}
