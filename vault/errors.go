package vault

import (
	"errors"
	"fmt"

	"github.com/jmcleod/ironpass/storage"
)

var (
	// ErrExists indicates a service with that name is already stored.
	ErrExists = errors.New("entry already exists")
	// ErrNotExist indicates no service with that name is stored.
	ErrNotExist = errors.New("entry does not exist")
	// ErrNotInited indicates the store has no identity record yet.
	ErrNotInited = errors.New("store not initialized")
	// ErrAlreadyInited indicates Init was called on a store that has an identity.
	ErrAlreadyInited = errors.New("store already initialized")
	// ErrDecryption indicates the cipher rejected a file.
	ErrDecryption = storage.ErrDecryption
	// ErrPasswordIncorrect indicates the passphrase does not unlock the store.
	ErrPasswordIncorrect = errors.New("password incorrect")
	// ErrWrongSpecType indicates a file holds a different record kind than expected.
	ErrWrongSpecType = errors.New("wrong record kind")
	// ErrWrongEncryptVersion indicates a file was sealed by a cipher other
	// than the store's current one.
	ErrWrongEncryptVersion = errors.New("wrong cipher version")
	// ErrVersionTooOld indicates a file was written by a newer schema than
	// this binary understands.
	ErrVersionTooOld = errors.New("record schema newer than supported")
	// ErrInProgress indicates a previous cipher migration left staged files.
	ErrInProgress = errors.New("cipher migration in progress")
	// ErrNoClipboard indicates a clipboard copy was requested without a Clipboard.
	ErrNoClipboard = errors.New("no clipboard configured")
	// ErrNonceExhausted indicates a service has been rotated the maximum number of times.
	ErrNonceExhausted = errors.New("password nonce exhausted")
	// ErrSessionClosed indicates the session has already been closed and its key material destroyed.
	ErrSessionClosed = errors.New("session closed")
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("invalid input")
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
