package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmcleod/ironpass/encryptor"
	"github.com/jmcleod/ironpass/internal/uuid"
	"github.com/jmcleod/ironpass/record"
	"github.com/jmcleod/ironpass/storage"
)

// MigrationResult summarizes a MigrateCipher run.
type MigrationResult struct {
	RunID    string
	From     string
	To       string
	Migrated int
	Skipped  int
	Entries  []MigrationEntry
}

type migration struct {
	store   *Store
	from    encryptor.Encryptor
	to      encryptor.Encryptor
	runID   string
	journal MigrationJournal
	log     *slog.Logger
	result  *MigrationResult
}

// MigrateCipher re-seals every file in the store from one cipher to another.
// The identity goes first since its unlock key depends on the cipher; service
// records keep the same content key and filenames.
//
// A nil from means the cipher named in the identity header. Files sealed
// under a cipher other than from or to are resolved through the Store's
// registry, so a store left with mixed ciphers can still be migrated.
//
// Each file is moved into the staging directory before it is rewritten, so a
// failure never truncates a live file. A file that already opens under the
// target cipher is skipped, which makes the run safe to repeat. If staged
// files remain from an earlier run the call fails with ErrInProgress; see
// RecoverStaging.
//
// Schema versions are preserved. The Store's own cipher is not changed: open
// a new Store WithEncryptor(to) to use the migrated files.
func (s *Store) MigrateCipher(ctx context.Context, passphrase string, from, to encryptor.Encryptor, opts ...MigrateOption) (*MigrationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if to == nil {
		return nil, validationErrorf("no target cipher")
	}
	if from != nil && from.Version() == to.Version() {
		return nil, validationErrorf("source and target cipher are both %s", from.Name())
	}

	o := migrateOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	ok, err := s.files.Exists(storage.IdentityFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInited
	}
	empty, err := s.files.StagingEmpty()
	if err != nil {
		return nil, err
	}
	if !empty {
		return nil, fmt.Errorf("%w: %s is not empty", ErrInProgress, s.files.StagingDir())
	}
	if from == nil {
		h, err := s.files.ReadHeader(storage.IdentityFile)
		if err != nil {
			return nil, err
		}
		if from, err = s.registry.Lookup(h.Cipher); err != nil {
			return nil, err
		}
	}

	m := &migration{
		store:   s,
		from:    from,
		to:      to,
		runID:   uuid.New(),
		journal: o.journal,
		log:     o.logger,
		result:  &MigrationResult{From: from.Name(), To: to.Name()},
	}
	m.result.RunID = m.runID
	if m.journal != nil {
		err := m.journal.Begin(MigrationRun{ID: m.runID, From: from.Name(), To: to.Name(), StartedAt: time.Now().UTC()})
		if err != nil {
			return nil, fmt.Errorf("journal begin: %w", err)
		}
	}
	m.log.Info("cipher migration started", "run", m.runID, "from", from.Name(), "to", to.Name(), "dir", s.baseDir)

	runErr := m.run(ctx, passphrase)
	if err := s.files.RemoveStagingIfEmpty(); err != nil && runErr == nil {
		runErr = err
	}
	if m.journal != nil {
		if err := m.journal.Finish(m.runID, time.Now().UTC(), runErr); err != nil && runErr == nil {
			runErr = fmt.Errorf("journal finish: %w", err)
		}
	}
	if runErr != nil {
		m.log.Error("cipher migration failed", "run", m.runID, "error", runErr)
		return m.result, runErr
	}
	m.log.Info("cipher migration finished", "run", m.runID, "migrated", m.result.Migrated, "skipped", m.result.Skipped)
	return m.result, nil
}

func (m *migration) run(ctx context.Context, passphrase string) error {
	newKey, err := m.to.DeriveKey(passphrase)
	if err != nil {
		return err
	}
	defer wipe(newKey)

	h, err := m.store.files.ReadHeader(storage.IdentityFile)
	if err != nil {
		return err
	}
	var oldKey []byte
	if h.Cipher != m.to.Version() {
		src, err := m.source(h.Cipher)
		if err != nil {
			return err
		}
		if oldKey, err = src.DeriveKey(passphrase); err != nil {
			return err
		}
		defer wipe(oldKey)
	}

	rec, err := m.file(storage.IdentityFile, record.KindIdentity, oldKey, newKey)
	if err != nil {
		if errors.Is(err, ErrDecryption) {
			err = fmt.Errorf("%w: %w", ErrPasswordIncorrect, err)
		}
		return err
	}
	id, err := record.AsIdentity(rec)
	if err != nil {
		return err
	}
	contentKey := make([]byte, len(id.Key))
	copy(contentKey, id.Key[:])
	clear(id.Key[:])
	defer wipe(contentKey)

	kind := record.KindService
	filenames, err := m.store.files.List(&kind, nil)
	if err != nil {
		return err
	}
	for _, filename := range filenames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := m.file(filename, record.KindService, contentKey, contentKey); err != nil {
			return err
		}
	}
	return nil
}

// file migrates one file and records its outcome.
func (m *migration) file(filename string, kind record.Kind, oldKey, newKey []byte) (record.Record, error) {
	rec, outcome, err := m.migrateFile(filename, kind, oldKey, newKey)
	entry := MigrationEntry{File: filename, Kind: kind, Outcome: outcome}
	if err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
	}
	m.result.Entries = append(m.result.Entries, entry)
	switch entry.Outcome {
	case OutcomeMigrated:
		m.result.Migrated++
	case OutcomeSkipped:
		m.result.Skipped++
	}
	m.log.Debug("cipher migration entry", "run", m.runID, "file", filename, "kind", kind, "outcome", entry.Outcome)
	if m.journal != nil {
		if jerr := m.journal.Record(m.runID, entry); jerr != nil && err == nil {
			err = fmt.Errorf("journal record: %w", jerr)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return rec, nil
}

func (m *migration) migrateFile(filename string, kind record.Kind, oldKey, newKey []byte) (record.Record, MigrationOutcome, error) {
	files := m.store.files
	env, err := files.ReadFull(filename)
	if err != nil {
		return nil, OutcomeFailed, err
	}
	if env.Kind != kind {
		return nil, OutcomeFailed, fmt.Errorf("%w: want %s, got %s", ErrWrongSpecType, kind, env.Kind)
	}
	if current := record.CurrentVersion(kind); env.Schema > current {
		return nil, OutcomeFailed, fmt.Errorf("%w: %s schema %d, newest known %d", ErrVersionTooOld, kind, env.Schema, current)
	}

	// Probe under the target cipher first so a repeated run does no work.
	if env.Cipher == m.to.Version() {
		rec, err := openRecord(env, m.to, newKey)
		if err != nil {
			return nil, OutcomeFailed, err
		}
		return rec, OutcomeSkipped, nil
	}
	src, err := m.source(env.Cipher)
	if err != nil {
		return nil, OutcomeFailed, err
	}
	if oldKey == nil {
		return nil, OutcomeFailed, fmt.Errorf("%w: no key for cipher %s", ErrWrongEncryptVersion, src.Name())
	}

	if err := files.StageFile(filename); err != nil {
		return nil, OutcomeFailed, err
	}
	rec, err := m.reseal(filename, src, oldKey, newKey)
	if err != nil {
		// Nothing reached the live path; put the original back.
		if rerr := files.RestoreStaged(filename); rerr != nil {
			return nil, OutcomeFailed, errors.Join(err, fmt.Errorf("restore staged: %w", rerr))
		}
		return nil, OutcomeFailed, err
	}
	if err := files.RemoveStaged(filename); err != nil {
		return nil, OutcomeFailed, err
	}
	return rec, OutcomeMigrated, nil
}

// source resolves the cipher a file is sealed with: from when the header
// names it, otherwise the Store's registry.
func (m *migration) source(version uint16) (encryptor.Encryptor, error) {
	if version == m.from.Version() {
		return m.from, nil
	}
	enc, err := m.store.registry.Lookup(version)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrongEncryptVersion, err)
	}
	return enc, nil
}

func (m *migration) reseal(filename string, src encryptor.Encryptor, oldKey, newKey []byte) (record.Record, error) {
	staged, err := m.store.files.ReadStaged(filename)
	if err != nil {
		return nil, err
	}
	rec, err := openRecord(staged, src, oldKey)
	if err != nil {
		return nil, err
	}
	env, err := storage.Seal(m.to, newKey, rec)
	if err != nil {
		return nil, err
	}
	if err := m.store.files.WriteFull(filename, env); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecoverStaging resolves files left in the staging directory by an
// interrupted MigrateCipher. A staged file whose live copy exists was already
// rewritten and is discarded; otherwise it is moved back. The staging
// directory is removed afterwards.
func (s *Store) RecoverStaging(ctx context.Context) (restored, discarded []string, err error) {
	staged, err := s.files.StagedFiles()
	if err != nil {
		return nil, nil, err
	}
	for _, filename := range staged {
		if err := ctx.Err(); err != nil {
			return restored, discarded, err
		}
		live, err := s.files.Exists(filename)
		if err != nil {
			return restored, discarded, err
		}
		if live {
			if err := s.files.RemoveStaged(filename); err != nil {
				return restored, discarded, err
			}
			discarded = append(discarded, filename)
			continue
		}
		if err := s.files.RestoreStaged(filename); err != nil {
			return restored, discarded, err
		}
		restored = append(restored, filename)
	}
	return restored, discarded, s.files.RemoveStagingIfEmpty()
}
