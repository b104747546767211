// Package production provides production integrations: persistence, event publishing, visualization.
package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/comalice/commando/internal/core"
)

// ErrNotFound is returned by Load when no snapshot exists for a pilot.
var ErrNotFound = errors.New("snapshot not found")

// JSONPersister keeps the latest snapshot of each pilot in {dir}/{id}.json.
type JSONPersister struct {
	dir string
}

// NewJSONPersister creates a JSONPersister, ensuring the directory exists.
func NewJSONPersister(dir string) (*JSONPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &JSONPersister{dir: dir}, nil
}

func (p *JSONPersister) Save(ctx context.Context, snapshot core.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	fn, err := snapshotFile(p.dir, snapshot.PilotID, ".json")
	if err != nil {
		return err
	}
	return writeAtomic(fn, data)
}

func (p *JSONPersister) Load(ctx context.Context, pilotID string) (core.Snapshot, error) {
	var snapshot core.Snapshot
	if err := readSnapshot(ctx, p.dir, pilotID, ".json", func(data []byte) error {
		return json.Unmarshal(data, &snapshot)
	}); err != nil {
		return core.Snapshot{}, err
	}
	return snapshot, nil
}

// YAMLPersister keeps the latest snapshot of each pilot in {dir}/{id}.yaml.
type YAMLPersister struct {
	dir string
}

// NewYAMLPersister creates a YAMLPersister, ensuring the directory exists.
func NewYAMLPersister(dir string) (*YAMLPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &YAMLPersister{dir: dir}, nil
}

func (p *YAMLPersister) Save(ctx context.Context, snapshot core.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	fn, err := snapshotFile(p.dir, snapshot.PilotID, ".yaml")
	if err != nil {
		return err
	}
	return writeAtomic(fn, data)
}

func (p *YAMLPersister) Load(ctx context.Context, pilotID string) (core.Snapshot, error) {
	var snapshot core.Snapshot
	if err := readSnapshot(ctx, p.dir, pilotID, ".yaml", func(data []byte) error {
		return yaml.Unmarshal(data, &snapshot)
	}); err != nil {
		return core.Snapshot{}, err
	}
	return snapshot, nil
}

func snapshotFile(dir, pilotID, ext string) (string, error) {
	id := strings.TrimSpace(pilotID)
	if id == "" {
		return "", fmt.Errorf("pilot id is required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid pilot id %q", pilotID)
	}
	return filepath.Join(dir, id+ext), nil
}

func readSnapshot(ctx context.Context, dir, pilotID, ext string, decode func([]byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn, err := snapshotFile(dir, pilotID, ext)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("pilot %q: %w", pilotID, ErrNotFound)
		}
		return fmt.Errorf("read %s: %w", fn, err)
	}
	if err := decode(data); err != nil {
		return fmt.Errorf("decode %s: %w", fn, err)
	}
	return nil
}

// writeAtomic replaces fn through a temp file so readers never see a torn
// snapshot.
func writeAtomic(fn string, data []byte) error {
	tmp := fn + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, fn); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
