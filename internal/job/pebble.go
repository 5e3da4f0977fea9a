package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Compile-time check that PebbleRepository implements Repository.
var _ Repository = (*PebbleRepository)(nil)

// keyPrefix namespaces job records; prefixEnd is its exclusive upper bound.
var (
	keyPrefix = []byte("job/")
	prefixEnd = []byte("job0")
)

// PebbleRepository persists jobs as JSON records in a Pebble database.
type PebbleRepository struct {
	db *pebble.DB
}

// OpenPebbleRepository opens (or creates) the database at dir.
func OpenPebbleRepository(dir string) (*PebbleRepository, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	return &PebbleRepository{db: db}, nil
}

// Close flushes and closes the database.
func (r *PebbleRepository) Close() error {
	return r.db.Close()
}

func jobKey(id string) []byte {
	return append(append([]byte{}, keyPrefix...), id...)
}

// Save writes the job synchronously.
func (r *PebbleRepository) Save(_ context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := r.db.Set(jobKey(job.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// FindByID reads and decodes a job.
func (r *PebbleRepository) FindByID(_ context.Context, id string) (*Job, error) {
	data, closer, err := r.db.Get(jobKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	defer closer.Close()

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// List scans every job record, oldest first. Undecodable records are skipped.
func (r *PebbleRepository) List(_ context.Context) ([]*Job, error) {
	iter, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: prefixEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	jobs := make([]*Job, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		var job Job
		if err := json.Unmarshal(iter.Value(), &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}

	sortByCreation(jobs)
	return jobs, nil
}

// Delete removes a job record.
func (r *PebbleRepository) Delete(_ context.Context, id string) error {
	key := jobKey(id)
	_, closer, err := r.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("get job: %w", err)
	}
	_ = closer.Close()

	if err := r.db.Delete(key, pebble.Sync); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}
