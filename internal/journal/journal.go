// Package journal keeps a bounded local history of publish cycle reports.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"tracker-service/internal/publish"
)

const DefaultMaxEntries = 500

var cyclesBucket = []byte("cycles")

type Journal struct {
	db         *bolt.DB
	maxEntries int
}

// Open opens or creates the journal database at path. maxEntries <= 0 uses
// DefaultMaxEntries.
func Open(path string, maxEntries int) (*Journal, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cyclesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create journal bucket")
	}

	return &Journal{db: db, maxEntries: maxEntries}, nil
}

// Append stores a report and drops the oldest entries beyond the limit.
func (j *Journal) Append(r publish.Report) error {
	v, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode report")
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(cyclesBucket)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(itob(id), v); err != nil {
			return err
		}

		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for i := 0; i < len(keys)-j.maxEntries; i++ {
			if err := b.Delete(keys[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recent returns up to n reports, newest first.
func (j *Journal) Recent(n int) ([]publish.Report, error) {
	var out []publish.Report
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(cyclesBucket).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var r publish.Report
			if err := json.Unmarshal(v, &r); err != nil {
				return errors.Wrapf(err, "decode entry %d", binary.BigEndian.Uint64(k))
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// WriteRecent writes up to n reports to w as JSON lines, newest first.
func (j *Journal) WriteRecent(w io.Writer, n int) error {
	reports, err := j.Recent(n)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return errors.Wrap(err, "write report")
		}
	}
	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
