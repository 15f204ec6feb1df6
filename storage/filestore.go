package storage

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	icrypto "github.com/jmcleod/ironpass/internal/crypto"
	"github.com/jmcleod/ironpass/internal/util"
	"github.com/jmcleod/ironpass/passgen"
	"github.com/jmcleod/ironpass/record"
)

const (
	// IdentityFile is the reserved name of the identity record.
	IdentityFile = ".apid"
	// StagingDirName is the subdirectory holding originals during a cipher
	// migration.
	StagingDirName = "legacy"
	// FilenameLength is the length of every service filename.
	FilenameLength = 32

	dirMode  = 0o700
	fileMode = 0o600
)

// ErrExists is returned by Create when the file is already present.
var ErrExists = errors.New("file already exists")

// Filename maps a logical service name to its on-disk name. The mapping is
// keyed by a subkey of the content key, so names are not recoverable from a
// directory listing and stay stable across cipher and passphrase changes.
func Filename(contentKey []byte, name string) (string, error) {
	fk, err := icrypto.DeriveFilenameKey(contentKey)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(fk)

	h := sha256.New()
	h.Write(fk)
	h.Write([]byte(name))
	return passgen.Encode(h.Sum(nil), passgen.AlphaNumeric, FilenameLength)
}

// FileStore is a flat directory of envelope files. It performs no locking;
// concurrent writers to one filename race and the last rename wins.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is not created
// until EnsureDir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the base directory.
func (s *FileStore) Dir() string { return s.dir }

// Path joins filename to the base directory.
func (s *FileStore) Path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// EnsureDir creates the base directory if needed.
func (s *FileStore) EnsureDir() error {
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	return nil
}

// Exists reports whether filename is present.
func (s *FileStore) Exists(filename string) (bool, error) {
	_, err := os.Stat(s.Path(filename))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Create writes a new file and fails with ErrExists if one is present.
func (s *FileStore) Create(filename string, env *Envelope) error {
	data, err := env.MarshalBinary()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.Path(filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s: %w", filename, ErrExists)
	}
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	return f.Close()
}

// WriteFull replaces filename with env. The write goes to a temporary file
// in the same directory and is renamed into place.
func (s *FileStore) WriteFull(filename string, env *Envelope) error {
	data, err := env.MarshalBinary()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}
	if err := tmp.Chmod(fileMode); err != nil {
		cleanup()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.Path(filename)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// ReadFull reads and parses filename.
func (s *FileStore) ReadFull(filename string) (*Envelope, error) {
	return readEnvelope(s.Path(filename))
}

func readEnvelope(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	env, err := ParseEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return env, nil
}

// ReadHeader reads only the plaintext header of filename.
func (s *FileStore) ReadHeader(filename string) (Header, error) {
	return readHeader(s.Path(filename))
}

func readHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Header{}, err
	}
	return ParseHeader(buf[:n])
}

// Delete removes filename.
func (s *FileStore) Delete(filename string) error {
	return os.Remove(s.Path(filename))
}

// List returns the sorted filenames whose headers match the filters. A nil
// filter matches everything. Only headers are read. Subdirectories, hidden
// files other than the identity file, and files without a valid header are
// skipped. A missing base directory lists as empty.
func (s *FileStore) List(kind *record.Kind, version *uint16) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() {
			continue
		}
		if strings.HasPrefix(name, ".") && name != IdentityFile {
			continue
		}
		h, err := readHeader(s.Path(name))
		if errors.Is(err, ErrShortHeader) || errors.Is(err, ErrUnknownKind) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if kind != nil && h.Kind != *kind {
			continue
		}
		if version != nil && h.Schema != *version {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Empty reports whether the store holds no records.
func (s *FileStore) Empty() (bool, error) {
	names, err := s.List(nil, nil)
	if err != nil {
		return false, err
	}
	return len(names) == 0, nil
}

// StagingDir returns the path of the migration staging directory.
func (s *FileStore) StagingDir() string {
	return filepath.Join(s.dir, StagingDirName)
}

// EnsureStagingDir creates the staging directory if needed.
func (s *FileStore) EnsureStagingDir() error {
	return os.MkdirAll(s.StagingDir(), dirMode)
}

// StagingEmpty reports whether the staging directory is absent or empty.
func (s *FileStore) StagingEmpty() (bool, error) {
	entries, err := os.ReadDir(s.StagingDir())
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// StagedFiles lists the filenames currently in staging.
func (s *FileStore) StagedFiles() ([]string, error) {
	entries, err := os.ReadDir(s.StagingDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

// StageFile moves filename from the live directory into staging, creating
// the staging directory on first use.
func (s *FileStore) StageFile(filename string) error {
	if err := s.EnsureStagingDir(); err != nil {
		return err
	}
	return os.Rename(s.Path(filename), filepath.Join(s.StagingDir(), filename))
}

// ReadStaged reads a staged file.
func (s *FileStore) ReadStaged(filename string) (*Envelope, error) {
	return readEnvelope(filepath.Join(s.StagingDir(), filename))
}

// RestoreStaged moves a staged file back to the live directory.
func (s *FileStore) RestoreStaged(filename string) error {
	return os.Rename(filepath.Join(s.StagingDir(), filename), s.Path(filename))
}

// RemoveStaged deletes a staged file.
func (s *FileStore) RemoveStaged(filename string) error {
	return os.Remove(filepath.Join(s.StagingDir(), filename))
}

// RemoveStagingIfEmpty deletes the staging directory when nothing is left in it.
func (s *FileStore) RemoveStagingIfEmpty() error {
	empty, err := s.StagingEmpty()
	if err != nil || !empty {
		return err
	}
	err = os.Remove(s.StagingDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
