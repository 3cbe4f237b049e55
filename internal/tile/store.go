package tile

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/tilewatch/internal/fsutil"
)

// FileStore persists registry mappings as indented JSON. Writes go through a
// temp-file rename so a crash mid-write cannot corrupt the mappings file.
type FileStore struct {
	Path string
	FS   fsutil.FileSystem
}

// NewFileStore creates a FileStore backed by the real filesystem.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, FS: fsutil.OSFileSystem{}}
}

// Load reads and parses the mappings file.
func (s *FileStore) Load() (*Mappings, error) {
	data, err := s.FS.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read mappings file: %w", err)
	}
	var m Mappings
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mappings file %s: %w", s.Path, err)
	}
	if m.ColorToType == nil {
		m.ColorToType = make(map[string]TypeID)
	}
	if m.TypeAliases == nil {
		m.TypeAliases = make(map[string]string)
	}
	if m.TileProperties == nil {
		m.TileProperties = make(map[string]Properties)
	}
	return &m, nil
}

// Save writes the mappings file synchronously.
func (s *FileStore) Save(m *Mappings) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mappings: %w", err)
	}
	if err := fsutil.WriteAtomic(s.FS, s.Path, data, 0644); err != nil {
		return fmt.Errorf("write mappings file %s: %w", s.Path, err)
	}
	return nil
}
