package learndb

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/banshee-data/tilewatch/internal/tile"
)

// serializeMappings compresses registry mappings with gob + gzip for blob
// storage.
func serializeMappings(m *tile.Mappings) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(m); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeMappings decodes a gob+gzip mappings blob.
func deserializeMappings(blob []byte) (*tile.Mappings, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty mappings blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var m tile.Mappings
	if err := gob.NewDecoder(gz).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode mappings: %w", err)
	}
	return &m, nil
}

// InsertRegistrySnapshot stores a point-in-time copy of the registry, taken
// after commits so past registry states stay inspectable.
func (db *DB) InsertRegistrySnapshot(m *tile.Mappings) (int64, error) {
	blob, err := serializeMappings(m)
	if err != nil {
		return 0, fmt.Errorf("serialize registry snapshot: %w", err)
	}
	res, err := db.Exec(`
		INSERT INTO registry_snapshots (taken_unix_nanos, definition_count, mappings_blob)
		VALUES (?, ?, ?)`,
		time.Now().UnixNano(), len(m.TileProperties), blob)
	if err != nil {
		return 0, fmt.Errorf("insert registry snapshot: %w", err)
	}
	return res.LastInsertId()
}

// GetRegistrySnapshot loads a stored registry snapshot by id.
func (db *DB) GetRegistrySnapshot(snapshotID int64) (*tile.Mappings, error) {
	var blob []byte
	err := db.QueryRow(`SELECT mappings_blob FROM registry_snapshots WHERE snapshot_id = ?`,
		snapshotID).Scan(&blob)
	if err != nil {
		return nil, fmt.Errorf("load registry snapshot %d: %w", snapshotID, err)
	}
	return deserializeMappings(blob)
}
