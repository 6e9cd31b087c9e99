package ccavenue

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrCipherKey is returned when the codec is constructed without a working key.
var ErrCipherKey = errors.New("ccavenue: working key must not be empty")

// The gateway pins AES-128-CBC with key = MD5(working key) and this fixed IV.
var gatewayIV = []byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
}

// EncryptError wraps failures while encrypting an outbound parameter string.
type EncryptError struct {
	Reason string
	Err    error
}

func (e *EncryptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ccavenue encrypt: %s: %v", e.Reason, e.Err)
	}
	return "ccavenue encrypt: " + e.Reason
}

func (e *EncryptError) Unwrap() error { return e.Err }

// DecryptError wraps failures while decrypting an inbound payload. Callers
// must treat it as fatal for the request; the codec never returns garbage.
type DecryptError struct {
	Reason string
	Err    error
}

func (e *DecryptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ccavenue decrypt: %s: %v", e.Reason, e.Err)
	}
	return "ccavenue decrypt: " + e.Reason
}

func (e *DecryptError) Unwrap() error { return e.Err }

// Codec encrypts and decrypts CCAvenue parameter strings. Safe for
// concurrent use once constructed.
type Codec struct {
	key []byte
}

func NewCodec(workingKey string) (*Codec, error) {
	if workingKey == "" {
		return nil, ErrCipherKey
	}
	sum := md5.Sum([]byte(workingKey))
	return &Codec{key: sum[:]}, nil
}

// Encrypt returns the hex-encoded AES-128-CBC ciphertext of plain.
func (c *Codec) Encrypt(plain string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", &EncryptError{Reason: "init cipher", Err: err}
	}

	padded := pkcs7Pad([]byte(plain), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, gatewayIV).CryptBlocks(out, padded)

	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Non-hex input, ciphertext that is not
// block-aligned, and bad padding all fail with a DecryptError.
func (c *Codec) Decrypt(encrypted string) (string, error) {
	raw, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", &DecryptError{Reason: "payload is not hex", Err: err}
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", &DecryptError{Reason: fmt.Sprintf("ciphertext length %d is not block-aligned", len(raw))}
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", &DecryptError{Reason: "init cipher", Err: err}
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, gatewayIV).CryptBlocks(out, raw)

	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", &DecryptError{Reason: "bad padding", Err: err}
	}

	return string(unpadded), nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("padded length %d", len(b))
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("padding byte %d", n)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("inconsistent padding bytes")
		}
	}
	return b[:len(b)-n], nil
}
