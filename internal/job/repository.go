package job

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// interruptedMessage is recorded on jobs that were in flight when the
// process stopped.
const interruptedMessage = "interrupted"

// Repository is the job table. Implementations store copies, so callers
// must Save after mutating a job.
type Repository interface {
	// Save inserts or replaces a job.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns all jobs, oldest first.
	List(ctx context.Context) ([]*Job, error)

	// Delete returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error
}

// RecoverInterrupted marks every non-terminal job in repo as FAILED.
// Exports do not survive a restart, so such jobs can never finish.
func RecoverInterrupted(ctx context.Context, repo Repository) (int, error) {
	jobs, err := repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}

	n := 0
	for _, j := range jobs {
		if j.IsTerminal() {
			continue
		}
		if err := j.Fail(interruptedMessage); err != nil {
			return n, fmt.Errorf("fail job %s: %w", j.ID, err)
		}
		if err := repo.Save(ctx, j); err != nil {
			return n, fmt.Errorf("save job %s: %w", j.ID, err)
		}
		n++
	}
	return n, nil
}

// sortByCreation orders jobs oldest first, breaking ties by ID.
func sortByCreation(jobs []*Job) {
	slices.SortFunc(jobs, func(a, b *Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
