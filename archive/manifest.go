package archive

import (
	"encoding/json"
	"fmt"
	"time"
)

// ManifestVersion is the current manifest format version.
const ManifestVersion = 1

// Artifact describes one published blob of a run.
type Artifact struct {
	// Name is the blob name relative to the run's key prefix.
	Name string `json:"name"`
	// Size is the artifact size in bytes as uploaded.
	Size int64 `json:"size"`
	// CRC32C is the Castagnoli checksum of the uploaded bytes.
	CRC32C uint32 `json:"crc32c"`
}

// Manifest describes one published index run. It is uploaded last: a run
// whose manifest exists is complete.
type Manifest struct {
	Version   int        `json:"version"`
	RunID     string     `json:"run_id"`
	Index     string     `json:"index"`
	K         int        `json:"k"`
	ItemCount int        `json:"item_count"`
	CreatedAt time.Time  `json:"created_at"`
	Artifacts []Artifact `json:"artifacts"`
}

// Encode renders the manifest as indented JSON.
func (m *Manifest) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// DecodeManifest parses a manifest and rejects unsupported versions.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("archive: decode manifest: %w", err)
	}
	if m.Version > ManifestVersion {
		return nil, fmt.Errorf("archive: unsupported manifest version %d", m.Version)
	}
	return &m, nil
}

// Artifact looks up an artifact by name.
func (m *Manifest) Artifact(name string) (Artifact, bool) {
	for _, a := range m.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}
