package crypt

import (
	"errors"
	"fmt"
)

// Op names the cipher operation that failed.
type Op string

const (
	OpEncrypt Op = "encrypt"
	OpDecrypt Op = "decrypt"
)

// Causes wrapped by CipherError.
var (
	ErrInvalidBase64  = errors.New("invalid base64 input")
	ErrBlockSize      = errors.New("ciphertext is not a whole number of blocks")
	ErrInvalidPadding = errors.New("invalid padding")
	ErrInvalidUTF8    = errors.New("plaintext is not valid UTF-8")
)

// KeyLengthError reports key or IV material shorter than KeySize bytes.
type KeyLengthError struct {
	Param string // "key" or "iv"
	Got   int    // UTF-8 byte length supplied
}

func (e *KeyLengthError) Error() string {
	return fmt.Sprintf("%s must be at least %d bytes, got %d", e.Param, KeySize, e.Got)
}

// CipherError is returned for any encryption or decryption failure.
// A CipherError with Op == OpDecrypt is a decryption error.
type CipherError struct {
	Op  Op
	Err error
}

func (e *CipherError) Error() string {
	if e.Op == OpDecrypt {
		return "Decryption failed: " + e.Err.Error()
	}
	return "Encryption failed: " + e.Err.Error()
}

func (e *CipherError) Unwrap() error {
	return e.Err
}

// IsDecryptionError reports whether err is a decryption failure.
func IsDecryptionError(err error) bool {
	var ce *CipherError
	return errors.As(err, &ce) && ce.Op == OpDecrypt
}

func decryptionError(err error) error {
	return &CipherError{Op: OpDecrypt, Err: err}
}
