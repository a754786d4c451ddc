// Package bolt keeps refresh records and users in an embedded bbolt file for single-node
// deployments. bbolt serializes write transactions, which makes every state change atomic.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/NordCoder/authd/internal/domain/auth"
)

var (
	bktRecords  = []byte("refresh_records")
	bktFamilies = []byte("refresh_families")
	bktUsers    = []byte("users")
	bktEmails   = []byte("user_emails")
)

type DB struct {
	db *bolt.DB
}

func Open(path string, timeout time.Duration) (*DB, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bktRecords, bktFamilies, bktUsers, bktEmails} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bktRecords) == nil {
			return errors.New("refresh bucket missing")
		}
		return nil
	})
}

// update runs fn in a write transaction bounded by ctx. bbolt cannot interrupt a caller waiting
// for the writer lock, so the wait happens in a goroutine; a transaction that gets the lock after
// ctx ended rolls back without touching anything.
func (d *DB) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- d.db.Update(func(tx *bolt.Tx) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(tx)
		})
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// storeErr passes domain sentinels through and reports everything else as unavailability.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{auth.ErrNotFound, auth.ErrNotActive, auth.ErrRecordExists} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: bolt %s: %w", auth.ErrStoreUnavailable, op, err)
}
