package production

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/comalice/commando/internal/core"
)

const snapshotBucket = "snapshots"

// BoltFileName is the database file created inside a snapshot directory.
const BoltFileName = "pilot.db"

// BoltPersister records every snapshot of every pilot in a BoltDB file.
// Snapshots are kept in a bucket per pilot, keyed by sequence number, so
// Load returns the latest and History replays the run.
type BoltPersister struct {
	db *bbolt.DB
}

// OpenBoltPersister opens (or creates) the database at path.
func OpenBoltPersister(path string) (*BoltPersister, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot bucket: %w", err)
	}
	return &BoltPersister{db: db}, nil
}

// Close closes the underlying database.
func (p *BoltPersister) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *BoltPersister) Save(ctx context.Context, snapshot core.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(snapshot.PilotID) == "" {
		return fmt.Errorf("pilot id is required")
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(snapshotBucket))
		if root == nil {
			return fmt.Errorf("snapshot bucket is missing")
		}
		pilot, err := root.CreateBucketIfNotExists([]byte(snapshot.PilotID))
		if err != nil {
			return fmt.Errorf("create pilot bucket: %w", err)
		}
		return pilot.Put(sequenceKey(snapshot.Sequence), payload)
	})
}

func (p *BoltPersister) Load(ctx context.Context, pilotID string) (core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, err
	}
	var snapshot core.Snapshot
	err := p.db.View(func(tx *bbolt.Tx) error {
		pilot := pilotBucket(tx, pilotID)
		if pilot == nil {
			return fmt.Errorf("pilot %q: %w", pilotID, ErrNotFound)
		}
		_, payload := pilot.Cursor().Last()
		if payload == nil {
			return fmt.Errorf("pilot %q: %w", pilotID, ErrNotFound)
		}
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return fmt.Errorf("unmarshal snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Snapshot{}, err
	}
	return snapshot, nil
}

// History returns the snapshots of a pilot in sequence order. A positive
// limit keeps only the most recent ones.
func (p *BoltPersister) History(ctx context.Context, pilotID string, limit int) ([]core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var history []core.Snapshot
	err := p.db.View(func(tx *bbolt.Tx) error {
		pilot := pilotBucket(tx, pilotID)
		if pilot == nil {
			return fmt.Errorf("pilot %q: %w", pilotID, ErrNotFound)
		}
		return pilot.ForEach(func(_, payload []byte) error {
			var s core.Snapshot
			if err := json.Unmarshal(payload, &s); err != nil {
				return fmt.Errorf("unmarshal snapshot: %w", err)
			}
			history = append(history, s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

// Pilots lists the pilot IDs with recorded snapshots.
func (p *BoltPersister) Pilots(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []string
	err := p.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(snapshotBucket))
		if root == nil {
			return nil
		}
		return root.ForEachBucket(func(k []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func pilotBucket(tx *bbolt.Tx, pilotID string) *bbolt.Bucket {
	root := tx.Bucket([]byte(snapshotBucket))
	if root == nil {
		return nil
	}
	return root.Bucket([]byte(pilotID))
}

// sequenceKey encodes big-endian so byte order matches numeric order.
func sequenceKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
