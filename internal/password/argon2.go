// Package password hashes and verifies account passwords with argon2id.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID      = "argon2id"
	maxPasswordBytes = 1024
	minMemoryKB      = 8 * 1024
)

var (
	ErrMalformedInput = errors.New("malformed password input")
	ErrMalformedHash  = errors.New("malformed password hash")
)

type Config struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultConfig() Config {
	return Config{MemoryKB: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

type Argon2 struct {
	cfg       Config
	dummyHash string
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.MemoryKB < minMemoryKB {
		return nil, fmt.Errorf("argon2 memory must be >= %d KB", minMemoryKB)
	}
	if cfg.Time < 1 || cfg.Parallelism < 1 {
		return nil, errors.New("argon2 time and parallelism must be >= 1")
	}
	if cfg.SaltLength < 16 || cfg.KeyLength < 16 {
		return nil, errors.New("argon2 salt and key length must be >= 16")
	}

	a := &Argon2{cfg: cfg}

	// Verifying against this hash when the account does not exist keeps the cost of a
	// failed lookup equal to the cost of a wrong password.
	dummy, err := a.Hash("unused-placeholder-password")
	if err != nil {
		return nil, err
	}
	a.dummyHash = dummy

	return a, nil
}

func (a *Argon2) Hash(plaintext string) (string, error) {
	if plaintext == "" || len(plaintext) > maxPasswordBytes {
		return "", ErrMalformedInput
	}

	salt := make([]byte, a.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, a.cfg.Time, a.cfg.MemoryKB, a.cfg.Parallelism, a.cfg.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.cfg.MemoryKB,
		a.cfg.Time,
		a.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a *Argon2) Verify(encoded string, plaintext string) (bool, error) {
	if len(plaintext) > maxPasswordBytes {
		return false, ErrMalformedInput
	}

	p, err := parse(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(plaintext), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

// DummyVerify spends the same work as Verify and always reports a mismatch.
func (a *Argon2) DummyVerify(plaintext string) {
	_, _ = a.Verify(a.dummyHash, plaintext)
}

type params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parse(encoded string) (params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return params{}, ErrMalformedHash
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return params{}, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, parts[2])
	}

	var p params
	var parallelism uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &parallelism); err != nil {
		return params{}, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if p.memory < minMemoryKB || p.time < 1 || parallelism < 1 || parallelism > 255 {
		return params{}, fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}
	p.parallelism = uint8(parallelism)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < 16 {
		return params{}, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < 16 {
		return params{}, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}

	p.salt = salt
	p.key = key
	return p, nil
}
