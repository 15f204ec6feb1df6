package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jmcleod/ironpass/record"
	"go.etcd.io/bbolt"
)

// ErrRunNotFound is returned for a journal run ID that was never begun.
var ErrRunNotFound = errors.New("migration run not found")

// MigrationOutcome is what happened to one file during a cipher migration.
type MigrationOutcome string

const (
	OutcomeSkipped  MigrationOutcome = "skipped"
	OutcomeMigrated MigrationOutcome = "migrated"
	OutcomeFailed   MigrationOutcome = "failed"
)

// MigrationEntry is the outcome for one file.
type MigrationEntry struct {
	File    string           `json:"file"`
	Kind    record.Kind      `json:"kind"`
	Outcome MigrationOutcome `json:"outcome"`
	Error   string           `json:"error,omitempty"`
}

// MigrationRun describes one MigrateCipher invocation.
type MigrationRun struct {
	ID         string           `json:"id"`
	From       string           `json:"from"`
	To         string           `json:"to"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at,omitzero"`
	Error      string           `json:"error,omitempty"`
	Entries    []MigrationEntry `json:"entries"`
}

// Finished reports whether the run reached its end, successfully or not.
func (r *MigrationRun) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// MigrationJournal records cipher migration runs so an interrupted run can be
// inspected after the fact.
type MigrationJournal interface {
	Begin(run MigrationRun) error
	Record(runID string, entry MigrationEntry) error
	Finish(runID string, at time.Time, runErr error) error
	Runs() ([]MigrationRun, error)
}

func finishRun(run *MigrationRun, at time.Time, runErr error) {
	run.FinishedAt = at
	if runErr != nil {
		run.Error = runErr.Error()
	}
}

func sortRuns(runs []MigrationRun) {
	slices.SortStableFunc(runs, func(a, b MigrationRun) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
}

// MemoryJournal is an in-memory journal suitable for tests and single-process use.
type MemoryJournal struct {
	mu   sync.RWMutex
	runs map[string]*MigrationRun
}

// NewMemoryJournal returns an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		runs: make(map[string]*MigrationRun),
	}
}

func (j *MemoryJournal) Begin(run MigrationRun) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.runs[run.ID]; ok {
		return fmt.Errorf("migration run %s already begun", run.ID)
	}
	j.runs[run.ID] = &run
	return nil
}

func (j *MemoryJournal) Record(runID string, entry MigrationEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	run, ok := j.runs[runID]
	if !ok {
		return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	run.Entries = append(run.Entries, entry)
	return nil
}

func (j *MemoryJournal) Finish(runID string, at time.Time, runErr error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	run, ok := j.runs[runID]
	if !ok {
		return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	finishRun(run, at, runErr)
	return nil
}

func (j *MemoryJournal) Runs() ([]MigrationRun, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	runs := make([]MigrationRun, 0, len(j.runs))
	for _, r := range j.runs {
		cp := *r
		cp.Entries = slices.Clone(r.Entries)
		runs = append(runs, cp)
	}
	sortRuns(runs)
	return runs, nil
}

var journalBucket = []byte("__migration_journal")

// BoltJournal persists runs in a dedicated BBolt bucket, one JSON value per
// run keyed by run ID. Every call is its own transaction, so entries recorded
// before a crash survive it.
type BoltJournal struct {
	db *bbolt.DB
}

// NewBoltJournal returns a journal backed by db, creating its bucket.
func NewBoltJournal(db *bbolt.DB) (*BoltJournal, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(journalBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BoltJournal{db: db}, nil
}

// NewBoltJournalFromFile opens a BBolt database at the given path and returns a new BoltJournal.
func NewBoltJournalFromFile(path string, options *bbolt.Options) (*BoltJournal, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	j, err := NewBoltJournal(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the underlying BBolt database.
func (j *BoltJournal) Close() error {
	return j.db.Close()
}

func (j *BoltJournal) Begin(run MigrationRun) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(journalBucket)
		if b.Get([]byte(run.ID)) != nil {
			return fmt.Errorf("migration run %s already begun", run.ID)
		}
		return putRun(b, &run)
	})
}

func (j *BoltJournal) Record(runID string, entry MigrationEntry) error {
	return j.update(runID, func(run *MigrationRun) {
		run.Entries = append(run.Entries, entry)
	})
}

func (j *BoltJournal) Finish(runID string, at time.Time, runErr error) error {
	return j.update(runID, func(run *MigrationRun) {
		finishRun(run, at, runErr)
	})
}

func (j *BoltJournal) Runs() ([]MigrationRun, error) {
	var runs []MigrationRun
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(journalBucket).ForEach(func(_, v []byte) error {
			var run MigrationRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRuns(runs)
	return runs, nil
}

func (j *BoltJournal) update(runID string, fn func(*MigrationRun)) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(journalBucket)
		data := b.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
		}
		var run MigrationRun
		if err := json.Unmarshal(data, &run); err != nil {
			return err
		}
		fn(&run)
		return putRun(b, &run)
	})
}

func putRun(b *bbolt.Bucket, run *MigrationRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return b.Put([]byte(run.ID), data)
}
