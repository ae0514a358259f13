// Package manifest records the digests of every artifact of a run.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"example.com/powerchunk/internal/common"
)

var ErrDigestMismatch = errors.New("manifest: digest mismatch")

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time `json:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo"`
	Items     []Item    `json:"items"`
}

// Build hashes every path. Paths are recorded relative to base when they
// live below it.
func Build(base string, paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, p := range paths {
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, Item{Path: relativeTo(base, p), Size: sz, Sha256: hex, Type: artifactType(p)})
	}
	return m, nil
}

func artifactType(path string) string {
	name := filepath.Base(path)
	switch {
	case strings.HasPrefix(name, "chunks_") && strings.HasSuffix(name, ".json"):
		return "chunks"
	case strings.HasPrefix(name, "diagnostics_"):
		return "diagnostics"
	case hasExt(name, ".csv", ".xlsx"):
		return "summary"
	case hasExt(name, ".txt", ".pdf"):
		return "analysis"
	case hasExt(name, ".json"):
		return "json"
	case hasExt(name, ".prom"):
		return "metrics"
	}
	return "other"
}

func hasExt(path string, exts ...string) bool {
	for _, e := range exts {
		if strings.HasSuffix(path, e) {
			return true
		}
	}
	return false
}

func relativeTo(base, p string) string {
	if base == "" {
		return p
	}
	rel, err := filepath.Rel(base, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return p
	}
	return filepath.ToSlash(rel)
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return common.WriteFileAtomic(out, append(b, '\n'))
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

// Verify re-hashes every item below base and reports the first mismatch.
func Verify(base string, m Manifest) error {
	for _, item := range m.Items {
		p := item.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, filepath.FromSlash(p))
		}
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return err
		}
		if hex != item.Sha256 || sz != item.Size {
			return fmt.Errorf("%w: %s", ErrDigestMismatch, item.Path)
		}
	}
	return nil
}
