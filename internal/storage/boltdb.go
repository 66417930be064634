package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/cursorclip/cursorclip/internal/types"
)

const pinnedBucket = "pinned"

// BoltStorage persists the pinned clipboard entries so they survive daemon
// restarts. Unpinned history is deliberately memory-only.
type BoltStorage struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// StorageConfig holds configuration for BoltStorage initialization.
type StorageConfig struct {
	DBPath string
	Logger *zap.Logger
}

// NewBoltStorage opens the database and bootstraps the pinned bucket.
func NewBoltStorage(config StorageConfig) (*BoltStorage, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := bbolt.Open(config.DBPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(pinnedBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStorage{db: db, logger: logger}, nil
}

// SavePinned rewrites the pinned set. Keys are the display position so load
// order matches save order.
func (s *BoltStorage) SavePinned(entries []*types.ClipboardEntry) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(pinnedBucket)); err != nil {
			return err
		}
		b, err := tx.CreateBucket([]byte(pinnedBucket))
		if err != nil {
			return err
		}
		for i, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal entry %d: %w", e.ID, err)
			}
			var key [8]byte
			binary.BigEndian.PutUint64(key[:], uint64(i))
			if err := b.Put(key[:], data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save pinned entries: %w", err)
	}
	s.logger.Debug("saved pinned entries", zap.Int("count", len(entries)))
	return nil
}

// LoadPinned returns the persisted pinned entries in display order.
func (s *BoltStorage) LoadPinned() ([]*types.ClipboardEntry, error) {
	var entries []*types.ClipboardEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(pinnedBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var e types.ClipboardEntry
			if err := json.Unmarshal(v, &e); err != nil {
				s.logger.Warn("skipping corrupt pinned entry", zap.Error(err))
				return nil
			}
			entries = append(entries, &e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load pinned entries: %w", err)
	}
	return entries, nil
}

func (s *BoltStorage) Close() error {
	return s.db.Close()
}
