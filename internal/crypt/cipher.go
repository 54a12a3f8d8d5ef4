// Package crypt implements the symmetric cipher used to protect phone numbers
// exchanged with the upstream service.
//
// Values are encrypted with AES-128 in CBC mode using PKCS#7 padding and framed
// as standard Base64. Key and IV are operator-supplied strings; the first 16
// bytes of their UTF-8 encoding are the raw key material. Output is
// byte-identical to WebCrypto's AES-CBC given the same key and IV bytes, which
// is what the upstream service produces and consumes.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

// KeySize is the number of bytes taken from the key and IV strings.
const KeySize = 16

// BlockSize is the AES block size in bytes.
const BlockSize = aes.BlockSize

// Default cipher parameters. They are operator-visible and editable in the
// console; they are not secrets.
const (
	DefaultKey = "-VWdb-9Ha^NSGbb4"
	DefaultIV  = "?L$%!G-ADpj>ykP8"
)

// Params holds the key and IV strings for a batch run.
// It is passed by value so a run keeps the snapshot it started with.
type Params struct {
	Key string
	IV  string
}

// DefaultParams returns the default key and IV.
func DefaultParams() Params {
	return Params{Key: DefaultKey, IV: DefaultIV}
}

// String masks the key material for logging.
func (p Params) String() string {
	return fmt.Sprintf("Params{Key: [MASKED %d bytes], IV: [MASKED %d bytes]}", len(p.Key), len(p.IV))
}

// Cipher is an AES-128-CBC cipher bound to derived key and IV material.
// A Cipher is immutable and safe for concurrent use.
type Cipher struct {
	block cipher.Block
	iv    [KeySize]byte
}

// New derives key and IV material from the given strings and returns a Cipher.
// Returns *KeyLengthError if either encodes to fewer than KeySize bytes.
func New(key, iv string) (*Cipher, error) {
	keyBytes, err := deriveMaterial("key", key)
	if err != nil {
		return nil, err
	}
	ivBytes, err := deriveMaterial("iv", iv)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}

	c := &Cipher{block: block}
	copy(c.iv[:], ivBytes)
	return c, nil
}

// NewFromParams is New for a Params value.
func NewFromParams(p Params) (*Cipher, error) {
	return New(p.Key, p.IV)
}

// deriveMaterial returns a private copy of the first KeySize bytes of s.
func deriveMaterial(param, s string) ([]byte, error) {
	raw := []byte(s)
	if len(raw) < KeySize {
		return nil, &KeyLengthError{Param: param, Got: len(raw)}
	}
	out := make([]byte, KeySize)
	copy(out, raw[:KeySize])
	return out, nil
}

// Encrypt encrypts plaintext and returns standard Base64 ciphertext.
func (c *Cipher) Encrypt(plaintext string) string {
	padded := pkcs7Pad([]byte(plaintext))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv[:]).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt decodes Base64 ciphertext, decrypts it and returns the UTF-8 plaintext.
// All failures are returned as *CipherError with Op set to OpDecrypt.
func (c *Cipher) Decrypt(ciphertextBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return "", decryptionError(fmt.Errorf("%w: %v", ErrInvalidBase64, err))
	}
	if len(raw) == 0 || len(raw)%BlockSize != 0 {
		return "", decryptionError(fmt.Errorf("%w: got %d bytes", ErrBlockSize, len(raw)))
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv[:]).CryptBlocks(out, raw)

	plain, err := pkcs7Unpad(out)
	if err != nil {
		return "", decryptionError(err)
	}
	if !utf8.Valid(plain) {
		return "", decryptionError(ErrInvalidUTF8)
	}
	return string(plain), nil
}

// Encrypt encrypts plaintext with the given key and IV strings.
func Encrypt(plaintext, key, iv string) (string, error) {
	c, err := New(key, iv)
	if err != nil {
		return "", &CipherError{Op: OpEncrypt, Err: err}
	}
	return c.Encrypt(plaintext), nil
}

// Decrypt decrypts Base64 ciphertext with the given key and IV strings.
func Decrypt(ciphertextBase64, key, iv string) (string, error) {
	c, err := New(key, iv)
	if err != nil {
		return "", decryptionError(err)
	}
	return c.Decrypt(ciphertextBase64)
}

func pkcs7Pad(data []byte) []byte {
	n := BlockSize - len(data)%BlockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > BlockSize || n > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
