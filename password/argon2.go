package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// DefaultMaxPasswordBytes bounds the input handed to the KDF when
// Config.MaxPasswordBytes is zero.
const DefaultMaxPasswordBytes = 1024

const phcAlgorithm = "argon2id"

// Lower bounds accepted both for new hashes and for hashes read back from
// storage.
var floor = Config{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   16,
}

var (
	// ErrEmptyPassword is returned by Hash for "".
	ErrEmptyPassword = errors.New("password: empty password")
	// ErrPasswordTooLong is returned by Hash and Verify before any KDF work.
	ErrPasswordTooLong = errors.New("password: input exceeds maximum length")
	// ErrMalformedHash wraps every decoding failure of a stored hash.
	ErrMalformedHash = errors.New("password: malformed argon2id hash")
)

// Config holds the argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MaxPasswordBytes caps the candidate length; 0 means
	// DefaultMaxPasswordBytes.
	MaxPasswordBytes int
}

// DefaultConfig returns the production cost parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < floor.Memory:
		return fmt.Errorf("password memory must be >= %d KiB", floor.Memory)
	case c.Time < floor.Time:
		return fmt.Errorf("password time must be >= %d", floor.Time)
	case c.Parallelism < floor.Parallelism:
		return fmt.Errorf("password parallelism must be >= %d", floor.Parallelism)
	case c.SaltLength < floor.SaltLength:
		return fmt.Errorf("password salt length must be >= %d", floor.SaltLength)
	case c.KeyLength < floor.KeyLength:
		return fmt.Errorf("password key length must be >= %d", floor.KeyLength)
	case c.MaxPasswordBytes < 0:
		return errors.New("password max bytes must be >= 0")
	}
	return nil
}

// Hasher is what the engine needs from a password hash implementation.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password string, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Argon2 produces and checks PHC-formatted argon2id hashes. It is safe for
// concurrent use.
type Argon2 struct {
	cfg   Config
	limit int
}

var _ Hasher = (*Argon2)(nil)

// NewArgon2 validates cfg against the minimum costs and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	limit := cfg.MaxPasswordBytes
	if limit == 0 {
		limit = DefaultMaxPasswordBytes
	}
	return &Argon2{cfg: cfg, limit: limit}, nil
}

// Hash returns "$argon2id$v=19$m=..,t=..,p=..$<salt>$<key>". Strength rules
// live in [Policy]; Hash only refuses empty and oversized input.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > a.limit {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, a.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}

	h := phc{
		memory:      a.cfg.Memory,
		time:        a.cfg.Time,
		parallelism: a.cfg.Parallelism,
		salt:        salt,
	}
	h.key = h.derive(password, a.cfg.KeyLength)
	return h.String(), nil
}

// Verify recomputes the key with the parameters embedded in encodedHash and
// compares in constant time. A malformed hash or oversized candidate is an
// error; a mismatch is not.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > a.limit {
		return false, ErrPasswordTooLong
	}
	h, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	got := h.derive(password, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the receiver's, or with a different key length.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	stale := h.memory < a.cfg.Memory ||
		h.time < a.cfg.Time ||
		h.parallelism < a.cfg.Parallelism ||
		uint32(len(h.key)) != a.cfg.KeyLength
	return stale, nil
}

// phc is one decoded argon2id hash string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (h phc) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.parallelism, keyLen)
}

func (h phc) String() string {
	b64 := base64.StdEncoding
	return "$" + phcAlgorithm +
		"$v=" + strconv.Itoa(argon2.Version) +
		"$m=" + strconv.FormatUint(uint64(h.memory), 10) +
		",t=" + strconv.FormatUint(uint64(h.time), 10) +
		",p=" + strconv.FormatUint(uint64(h.parallelism), 10) +
		"$" + b64.EncodeToString(h.salt) +
		"$" + b64.EncodeToString(h.key)
}

func malformed(detail string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, detail)
}

func parsePHC(s string) (phc, error) {
	var h phc

	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return h, malformed("expected 5 '$'-separated fields")
	}
	if fields[1] != phcAlgorithm {
		return h, malformed("algorithm " + strconv.Quote(fields[1]))
	}

	v, ok := strings.CutPrefix(fields[2], "v=")
	if !ok {
		return h, malformed("missing version")
	}
	if n, err := strconv.Atoi(v); err != nil || n != argon2.Version {
		return h, malformed("unsupported version " + strconv.Quote(v))
	}

	if err := h.parseParams(fields[3]); err != nil {
		return h, err
	}

	var err error
	if h.salt, err = base64.StdEncoding.DecodeString(fields[4]); err != nil {
		return h, malformed("salt encoding")
	}
	if uint32(len(h.salt)) < floor.SaltLength {
		return h, malformed("salt too short")
	}
	if h.key, err = base64.StdEncoding.DecodeString(fields[5]); err != nil {
		return h, malformed("key encoding")
	}
	if len(h.key) == 0 {
		return h, malformed("empty key")
	}
	return h, nil
}

// parseParams accepts exactly m, t and p, each once, in any order.
func (h *phc) parseParams(s string) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || seen[k] {
			return malformed("parameter " + strconv.Quote(pair))
		}
		seen[k] = true

		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < floor.Memory {
				return malformed("memory parameter")
			}
			h.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < floor.Time {
				return malformed("time parameter")
			}
			h.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || uint8(n) < floor.Parallelism {
				return malformed("parallelism parameter")
			}
			h.parallelism = uint8(n)
		default:
			return malformed("unknown parameter " + strconv.Quote(k))
		}
	}
	if len(seen) != 3 {
		return malformed("missing parameters")
	}
	return nil
}
