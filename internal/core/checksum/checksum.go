package checksum

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/Ning0612/Tidyfs/internal/domain"
)

// Algorithm identifies a hash function by name
type Algorithm string

const (
	// MD5 algorithm (fast, not collision resistant)
	MD5 Algorithm = "md5"
	// SHA1 algorithm, the default for hash names
	SHA1 Algorithm = "sha1"
	// SHA256 algorithm
	SHA256 Algorithm = "sha256"
	// SHA512 algorithm
	SHA512 Algorithm = "sha512"
)

// DefaultAlgorithm is used when no algorithm is configured
const DefaultAlgorithm = SHA1

// Options configures the checksum calculator
type Options struct {
	// MaxSize: inputs larger than this are rejected (0 = unlimited)
	MaxSize int64

	// BufferSize: size of buffer for streaming reads
	BufferSize int
}

// DefaultOptions returns the recommended default options
func DefaultOptions() Options {
	return Options{
		MaxSize:    0,
		BufferSize: 32 * 1024, // 32KB
	}
}

// Addresser hashes a byte string into a lower-case hex digest
type Addresser interface {
	Hash(algo Algorithm, data []byte) (string, error)
}

// Calculator computes checksums of streams
type Calculator interface {
	// Calculate computes checksum from an io.Reader
	Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error)
}

// DefaultCalculator implements Calculator and Addresser with streaming support
type DefaultCalculator struct {
	opts Options
}

// NewCalculator creates a new calculator with the given options
func NewCalculator(opts Options) *DefaultCalculator {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	return &DefaultCalculator{opts: opts}
}

// NewDefaultCalculator creates a calculator with default options
func NewDefaultCalculator() *DefaultCalculator {
	return NewCalculator(DefaultOptions())
}

// ParseAlgorithm normalizes an identifier and rejects unknown ones
func ParseAlgorithm(s string) (Algorithm, error) {
	algo := Algorithm(strings.ToLower(strings.TrimSpace(s)))
	if algo == "" {
		return DefaultAlgorithm, nil
	}
	if !IsSupported(algo) {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, s)
	}
	return algo, nil
}

// New returns a fresh hash.Hash for the algorithm
func New(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, string(algo))
	}
}

// Hash implements Addresser
func (c *DefaultCalculator) Hash(algo Algorithm, data []byte) (string, error) {
	return c.Calculate(context.Background(), bytes.NewReader(data), algo)
}

// Hash digests data with a default calculator
func Hash(algo Algorithm, data []byte) (string, error) {
	return NewDefaultCalculator().Hash(algo, data)
}

// Calculate implements the Calculator interface
func (c *DefaultCalculator) Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error) {
	h, err := New(algo)
	if err != nil {
		return "", err
	}

	var limitedReader io.Reader = reader
	if c.opts.MaxSize > 0 {
		limitedReader = io.LimitReader(reader, c.opts.MaxSize+1)
	}

	buffer := make([]byte, c.opts.BufferSize)
	totalBytes := int64(0)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := limitedReader.Read(buffer)
		if n > 0 {
			totalBytes += int64(n)

			if c.opts.MaxSize > 0 && totalBytes > c.opts.MaxSize {
				return "", fmt.Errorf("input size exceeds maximum (%d bytes)", c.opts.MaxSize)
			}

			if _, hashErr := h.Write(buffer[:n]); hashErr != nil {
				return "", fmt.Errorf("hash write error: %w", hashErr)
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read error: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsSupported checks if the given algorithm is supported
func IsSupported(algo Algorithm) bool {
	switch algo {
	case MD5, SHA1, SHA256, SHA512:
		return true
	default:
		return false
	}
}

// DigestLen returns the hex length of a digest, or 0 for unknown algorithms
func DigestLen(algo Algorithm) int {
	h, err := New(algo)
	if err != nil {
		return 0
	}
	return hex.EncodedLen(h.Size())
}
