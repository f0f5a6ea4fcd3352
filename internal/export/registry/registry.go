// Package registry implements the in-memory Job Registry of spec §4.9:
// job creation, status transitions, lookup, and cursor-paginated
// listing, grounded on the teacher's base64 (created_at, job_id)
// keyset-pagination cursor (internal/api/handler/cursor.go) adapted
// here for an in-process map instead of a SQL ORDER BY/LIMIT query.
package registry

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/column-stream/exportd/internal/export/domain"
)

// Registry tracks every ExportJob created by this process. A single
// export server is expected to run one Registry; it does not persist
// across restarts (spec §4.9's Non-goals exclude durable job storage).
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*domain.ExportJob
}

func New() *Registry {
	return &Registry{jobs: make(map[string]*domain.ExportJob)}
}

// Create stores a freshly pending job.
func (r *Registry) Create(job *domain.ExportJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

// Get returns the job with id, or ErrJobNotFound.
func (r *Registry) Get(id string) (*domain.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return job, nil
}

// Transition moves job id to next, rejecting illegal transitions per
// domain.ExportJob.CanTransition.
func (r *Registry) Transition(id string, next domain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if !job.CanTransition(next) {
		return fmt.Errorf("%w: cannot move job %s from %s to %s", domain.ErrRequestInvalid, id, job.Status, next)
	}

	job.Status = next
	if next == domain.JobStatusCompleted || next == domain.JobStatusFailed {
		now := time.Now()
		job.CompletedAt = &now
	}
	return nil
}

// Fail transitions job id to failed, recording err's message and
// whether the cause was a client disconnect.
func (r *Registry) Fail(id string, err error, clientDisconnected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if !job.CanTransition(domain.JobStatusFailed) {
		return fmt.Errorf("%w: cannot fail job %s from %s", domain.ErrRequestInvalid, id, job.Status)
	}

	job.Status = domain.JobStatusFailed
	job.Error = err.Error()
	job.ClientDisconnected = clientDisconnected
	now := time.Now()
	job.CompletedAt = &now
	return nil
}

// SetRowsWritten updates the running row counter the pipeline driver
// reports progress through.
func (r *Registry) SetRowsWritten(id string, rows int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.RowsWritten = rows
	}
}

// Cursor identifies a position in the (CreatedAt, ID) descending
// listing order, mirroring the teacher's JobCursor.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// DecodeCursor mirrors the teacher's DecodeJobCursor: a base64 blob of
// "<unix-nano>|<id>". An empty string decodes to a nil cursor (first
// page).
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid cursor encoding: %v", domain.ErrRequestInvalid, err)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: invalid cursor format", domain.ErrRequestInvalid)
	}

	var nanos int64
	if _, err := fmt.Sscanf(parts[0], "%d", &nanos); err != nil {
		return nil, fmt.Errorf("%w: invalid cursor timestamp: %v", domain.ErrRequestInvalid, err)
	}

	return &Cursor{CreatedAt: time.Unix(0, nanos), ID: parts[1]}, nil
}

// EncodeCursor mirrors the teacher's EncodeJobCursor.
func EncodeCursor(c Cursor) string {
	s := fmt.Sprintf("%d|%s", c.CreatedAt.UnixNano(), c.ID)
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// List returns up to pageSize jobs ordered by (CreatedAt, ID)
// descending, starting strictly after after (nil for the first page),
// plus the cursor to pass for the next page (empty when exhausted).
func (r *Registry) List(after *Cursor, pageSize int) ([]*domain.ExportJob, string) {
	r.mu.Lock()
	all := make([]*domain.ExportJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		all = append(all, job)
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	start := 0
	if after != nil {
		for i, job := range all {
			if job.CreatedAt.Before(after.CreatedAt) || (job.CreatedAt.Equal(after.CreatedAt) && job.ID < after.ID) {
				start = i
				break
			}
			start = i + 1
		}
	}

	remaining := all[start:]
	if len(remaining) <= pageSize {
		return remaining, ""
	}

	page := remaining[:pageSize]
	last := page[len(page)-1]
	return page, EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
}
