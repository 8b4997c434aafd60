package serverdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NikhilRaikwar/Cubeathon/cubegame"
	bolt "go.etcd.io/bbolt"
)

var (
	sessionsBucket = []byte("sessions")
	boardsBucket   = []byte("leaderboards")
)

// BoltDB implements ServerDB on a single bbolt file. Sessions are keyed by
// big-endian id in the sessions bucket; each mode's board is one JSON value
// in the leaderboards bucket.
type BoltDB struct {
	db *bolt.DB
}

var _ ServerDB = (*BoltDB)(nil)

// NewBoltDB opens the database file, creating it and its buckets if needed.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sessionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(boardsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &BoltDB{db: db}, nil
}

func sessionKey(id uint32) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], id)
	return key[:]
}

func putSession(tx *bolt.Tx, snap cubegame.SessionSnapshot) error {
	b := tx.Bucket(sessionsBucket)
	if b == nil {
		return ErrMainBucketNotFound
	}
	blob, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return b.Put(sessionKey(snap.ID), blob)
}

func putBoard(tx *bolt.Tx, mode cubegame.Mode, board []cubegame.LeaderboardEntry) error {
	b := tx.Bucket(boardsBucket)
	if b == nil {
		return ErrBoardBucketNotFound
	}
	blob, err := json.Marshal(board)
	if err != nil {
		return err
	}
	return b.Put([]byte(mode), blob)
}

func (d *BoltDB) SaveSession(ctx context.Context, snap cubegame.SessionSnapshot) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return putSession(tx, snap)
	})
}

func (d *BoltDB) FetchSession(ctx context.Context, id uint32) (cubegame.SessionSnapshot, error) {
	var snap cubegame.SessionSnapshot
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		if b == nil {
			return ErrMainBucketNotFound
		}
		blob := b.Get(sessionKey(id))
		if blob == nil {
			return ErrSessionNotFound
		}
		return json.Unmarshal(blob, &snap)
	})
	return snap, err
}

func (d *BoltDB) FetchSessions(ctx context.Context) ([]cubegame.SessionSnapshot, error) {
	var out []cubegame.SessionSnapshot
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		if b == nil {
			return ErrMainBucketNotFound
		}
		return b.ForEach(func(k, v []byte) error {
			var snap cubegame.SessionSnapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("session %x: %w", k, err)
			}
			out = append(out, snap)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveDecision writes the terminal session and the merged board in a single
// transaction.
func (d *BoltDB) SaveDecision(ctx context.Context, snap cubegame.SessionSnapshot, mode cubegame.Mode, board []cubegame.LeaderboardEntry) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		if err := putSession(tx, snap); err != nil {
			return err
		}
		return putBoard(tx, mode, board)
	})
}

func (d *BoltDB) FetchLeaderboard(ctx context.Context, mode cubegame.Mode) ([]cubegame.LeaderboardEntry, error) {
	var out []cubegame.LeaderboardEntry
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(boardsBucket)
		if b == nil {
			return ErrBoardBucketNotFound
		}
		blob := b.Get([]byte(mode))
		if blob == nil {
			return nil
		}
		return json.Unmarshal(blob, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *BoltDB) Close() error {
	return d.db.Close()
}
