package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
)

var evaluationsBucket = []byte("evaluations")

// BoltBackend stores evaluations in an embedded bbolt file. The revision
// check and the write share one transaction.
type BoltBackend struct {
	db   *bbolt.DB
	path string
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*BoltBackend, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(evaluationsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create evaluations bucket: %w", err)
	}

	return &BoltBackend{db: db, path: path}, nil
}

func (b *BoltBackend) Name() string { return "bolt" }

// Path returns the database file path.
func (b *BoltBackend) Path() string { return b.path }

func (b *BoltBackend) Get(_ context.Context, clusterID string) (*evaluation.Evaluation, error) {
	var ev *evaluation.Evaluation
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(evaluationsBucket).Get([]byte(clusterID))
		if data == nil {
			return nil
		}
		ev = &evaluation.Evaluation{}
		return json.Unmarshal(data, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", clusterID, err)
	}
	return ev, nil
}

func (b *BoltBackend) All(_ context.Context) (map[string]*evaluation.Evaluation, error) {
	out := make(map[string]*evaluation.Evaluation)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(evaluationsBucket).ForEach(func(k, v []byte) error {
			ev := &evaluation.Evaluation{}
			if err := json.Unmarshal(v, ev); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			out[string(k)] = ev
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltBackend) Write(_ context.Context, ev *evaluation.Evaluation, prev uint64) (uint64, error) {
	var rev uint64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(evaluationsBucket)
		key := []byte(ev.ClusterID)

		var current uint64
		if data := bucket.Get(key); data != nil {
			var stored evaluation.Evaluation
			if err := json.Unmarshal(data, &stored); err != nil {
				return fmt.Errorf("decode %s: %w", ev.ClusterID, err)
			}
			current = stored.Revision
		}
		if current != prev {
			return ErrRevisionMismatch
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		record := ev.Clone()
		record.Revision = seq

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		rev = seq
		return bucket.Put(key, data)
	})
	if err != nil {
		return 0, err
	}
	return rev, nil
}

func (b *BoltBackend) Close() error { return b.db.Close() }
