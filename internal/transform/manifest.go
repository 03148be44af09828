package transform

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dolex/internal/core"
)

// ManifestSuffix is appended to a source file's stem to name its manifest.
const ManifestSuffix = ".dolex.json"

// manifestFile is the on-disk shape: only derived-layer records, grouped by
// table.
type manifestFile struct {
	Tables map[string][]*core.TransformRecord `json:"tables"`
}

// ManifestPath derives the manifest location for a source path: next to the
// file, with the extension replaced by ".dolex.json". Directories get the
// manifest inside them.
func ManifestPath(sourcePath string) string {
	info, err := os.Stat(sourcePath)
	if err == nil && info.IsDir() {
		return filepath.Join(sourcePath, "tables"+ManifestSuffix)
	}
	ext := filepath.Ext(sourcePath)
	return strings.TrimSuffix(sourcePath, ext) + ManifestSuffix
}

// WriteManifest persists every derived record of the metadata set. The write
// is atomic: a temp file in the same directory is renamed over the target.
// An empty derived layer removes the manifest instead.
func WriteManifest(path string, m *Metadata) error {
	mf := manifestFile{Tables: make(map[string][]*core.TransformRecord)}
	for _, r := range m.records {
		if r.Layer != core.LayerDerived {
			continue
		}
		mf.Tables[r.Table] = append(mf.Tables[r.Table], r)
	}

	if len(mf.Tables) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove empty manifest: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".dolex-manifest-*")
	if err != nil {
		return fmt.Errorf("failed to create manifest temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close manifest temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest into a fresh metadata set. A missing file
// yields empty metadata; a corrupt file is an error the caller downgrades
// to a warning.
func LoadManifest(path string) (*Metadata, error) {
	m := NewMetadata()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	for table, recs := range mf.Tables {
		for _, r := range recs {
			r.Table = table
			r.Layer = core.LayerDerived
			if r.Order >= m.nextOrder {
				m.nextOrder = r.Order + 1
			}
			m.records = append(m.records, r)
		}
	}
	return m, nil
}
