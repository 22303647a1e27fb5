package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
)

const (
	ManifestFile    = "index.json"
	ManifestVersion = 1
	TombstoneExt    = ".del"
)

// Manifest lists the segments of an index. Segment order defines the global
// document id space: each segment's ids start where the previous one ended.
type Manifest struct {
	Version    int           `json:"version"`
	Generation uint64        `json:"generation"`
	Segments   []SegmentMeta `json:"segments"`
}

// SegmentMeta describes one segment in the manifest.
type SegmentMeta struct {
	Name     string `json:"name"`
	DocCount uint32 `json:"doc_count"`
}

// MaxDoc returns the total number of document ids, tombstones included.
func (m Manifest) MaxDoc() int {
	total := 0
	for _, s := range m.Segments {
		total += int(s.DocCount)
	}
	return total
}

func readManifest(dir string) (Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, pkgerrors.Corruptf("%s: missing %s", dir, ManifestFile)
		}
		return Manifest{}, pkgerrors.Unavailable("reading manifest", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, pkgerrors.Corruptf("%s: parsing manifest: %v", dir, err)
	}
	if m.Version != ManifestVersion {
		return Manifest{}, pkgerrors.Corruptf("%s: unsupported manifest version %d", dir, m.Version)
	}
	seen := make(map[string]struct{}, len(m.Segments))
	for _, s := range m.Segments {
		if s.Name == "" || filepath.Base(s.Name) != s.Name {
			return Manifest{}, pkgerrors.Corruptf("%s: invalid segment name %q", dir, s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return Manifest{}, pkgerrors.Corruptf("%s: segment %q listed twice", dir, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return m, nil
}

// WriteManifest atomically writes the manifest into dir.
func WriteManifest(dir string, m Manifest) error {
	if m.Version == 0 {
		m.Version = ManifestVersion
	}
	if m.Segments == nil {
		m.Segments = []SegmentMeta{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, ManifestFile), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}
