package vault

import (
	"log/slog"

	"github.com/jmcleod/ironpass/encryptor"
	"github.com/jmcleod/ironpass/record"
)

// Option configures a Store.
type Option func(*Store)

// WithBaseDir sets the store directory. Without it the directory comes from
// $IRONPASS_BASEDIR, else ~/.ironpass.
func WithBaseDir(dir string) Option {
	return func(s *Store) {
		s.baseDir = dir
	}
}

// WithEncryptor sets the current cipher. Files sealed by any other cipher
// are rejected until migrated with MigrateCipher.
// Default: encryptor.Current().
func WithEncryptor(enc encryptor.Encryptor) Option {
	return func(s *Store) {
		s.enc = enc
	}
}

// WithRegistry sets the ciphers MigrateCipher resolves from file headers
// when a file is sealed under neither its source nor its target cipher.
// Default: encryptor.Default().
func WithRegistry(r *encryptor.Registry) Option {
	return func(s *Store) {
		s.registry = r
	}
}

// WithClipboard sets the destination for Get with toClipboard.
func WithClipboard(cb Clipboard) Option {
	return func(s *Store) {
		s.clipboard = cb
	}
}

// WithClock overrides the timestamp source for record mutations.
func WithClock(now record.Clock) Option {
	return func(s *Store) {
		s.now = now
	}
}

// ServiceOption configures NewService.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	kvs      []KV
	tags     []string
	password string
}

// WithKVs sets the initial metadata.
func WithKVs(kvs ...KV) ServiceOption {
	return func(o *serviceOptions) {
		o.kvs = append(o.kvs, kvs...)
	}
}

// WithTags sets the initial tags.
func WithTags(tags ...string) ServiceOption {
	return func(o *serviceOptions) {
		o.tags = append(o.tags, tags...)
	}
}

// WithPassword stores pass verbatim instead of generating one.
func WithPassword(pass string) ServiceOption {
	return func(o *serviceOptions) {
		o.password = pass
	}
}

// MigrateOption configures MigrateCipher.
type MigrateOption func(*migrateOptions)

type migrateOptions struct {
	journal MigrationJournal
	logger  *slog.Logger
}

// WithJournal records the run and every per-record outcome.
func WithJournal(j MigrationJournal) MigrateOption {
	return func(o *migrateOptions) {
		o.journal = j
	}
}

// WithMigrationLogger sets the logger for progress messages.
// Default: discard.
func WithMigrationLogger(l *slog.Logger) MigrateOption {
	return func(o *migrateOptions) {
		o.logger = l
	}
}
