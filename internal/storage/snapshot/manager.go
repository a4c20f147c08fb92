package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/yndnr/emberkv/internal/core/domain"
	"github.com/yndnr/emberkv/internal/storage"
	"github.com/yndnr/emberkv/pkg/crypto/adaptive"
)

var magicBytes = []byte("EMBERKV1")

const (
	headerVersion = 1
	checksumSize  = sha256.Size

	// DefaultKeep is the default number of rotated copies.
	DefaultKeep = 3
)

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrMalformed        = errors.New("snapshot: malformed file")
	ErrNoPassphrase     = errors.New("snapshot: file is encrypted and no passphrase is configured")
	ErrDecrypt          = errors.New("snapshot: decryption failed, wrong passphrase or corrupted data")
)

type fileHeader struct {
	Version   int           `json:"version"`
	CreatedAt int64         `json:"created_at"`
	Keys      uint64        `json:"keys"`
	Encrypted bool          `json:"encrypted"`
	Cipher    string        `json:"cipher,omitempty"`
	Salt      []byte        `json:"salt,omitempty"`
	KDF       *adaptive.KDF `json:"kdf,omitempty"`
}

// Config configures the snapshot manager.
type Config struct {
	// Dir holds the snapshot file and its rotated copies.
	Dir string
	// Filename is the base name of the current snapshot.
	Filename string
	// Keep is the number of previous snapshots kept as Filename.1 ... .N.
	// Zero keeps none.
	Keep int
	// Passphrase enables encryption when non-empty.
	Passphrase []byte
	// KDF overrides the argon2id cost; zero means adaptive.DefaultKDF.
	KDF adaptive.KDF
}

// Manager is a storage.Persister backed by snapshot files. Save and Load
// may run on any goroutine but not concurrently with each other.
type Manager struct {
	cfg    Config
	logger *slog.Logger
}

var _ storage.Persister = (*Manager)(nil)

// NewManager creates the directory if needed and returns a Manager.
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if cfg.Filename == "" {
		return nil, fmt.Errorf("snapshot: filename is required")
	}
	if cfg.Keep < 0 {
		return nil, fmt.Errorf("snapshot: keep must not be negative")
	}
	if cfg.KDF == (adaptive.KDF{}) {
		cfg.KDF = adaptive.DefaultKDF
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	return &Manager{cfg: cfg, logger: logger}, nil
}

// Path returns the current snapshot path.
func (m *Manager) Path() string {
	return filepath.Join(m.cfg.Dir, m.cfg.Filename)
}

func (m *Manager) rotatedPath(i int) string {
	return m.Path() + "." + strconv.Itoa(i)
}

// Info describes a snapshot file.
type Info struct {
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Keys      uint64    `json:"keys"`
	Encrypted bool      `json:"encrypted"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
}

// Save writes snap to a temp file, rotates the previous snapshots and
// renames the temp file into place.
func (m *Manager) Save(ctx context.Context, snap *storage.Snapshot) error {
	created := snap.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	body := encodeBody(snap)
	if err := ctx.Err(); err != nil {
		return err
	}

	hdr := fileHeader{
		Version:   headerVersion,
		CreatedAt: created.UnixMilli(),
		Keys:      uint64(snap.Len()),
	}
	var c adaptive.Cipher
	if len(m.cfg.Passphrase) > 0 {
		salt, err := adaptive.NewSalt()
		if err != nil {
			return err
		}
		kdf := m.cfg.KDF
		c, err = adaptive.New(adaptive.DeriveKey(m.cfg.Passphrase, salt, kdf))
		if err != nil {
			return fmt.Errorf("snapshot: cipher: %w", err)
		}
		hdr.Encrypted = true
		hdr.Cipher = string(c.Type())
		hdr.Salt = salt
		hdr.KDF = &kdf
	}

	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("snapshot: marshal header: %w", err)
	}
	if c != nil {
		// The header is authenticated along with the body.
		body, err = c.Encrypt(body, hdrJSON)
		if err != nil {
			return fmt.Errorf("snapshot: encrypt: %w", err)
		}
	}

	tmp, err := os.CreateTemp(m.cfg.Dir, m.cfg.Filename+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeFile(tmp, hdrJSON, body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}

	if err := m.rotate(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, m.Path()); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}

	m.logger.Info("snapshot saved",
		"path", m.Path(),
		"keys", hdr.Keys,
		"encrypted", hdr.Encrypted)
	return nil
}

func writeFile(f *os.File, hdrJSON, body []byte) error {
	bw := bufio.NewWriter(f)
	hash := sha256.New()
	w := io.MultiWriter(bw, hash)

	var hdrLen [4]byte
	binary.BigEndian.PutUint32(hdrLen[:], uint32(len(hdrJSON)))
	var bodyLen [8]byte
	binary.BigEndian.PutUint64(bodyLen[:], uint64(len(body)))

	for _, part := range [][]byte{magicBytes, hdrLen[:], hdrJSON, bodyLen[:], body} {
		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("snapshot: write: %w", err)
		}
	}
	// The checksum trailer is not part of the hash.
	if _, err := bw.Write(hash.Sum(nil)); err != nil {
		return fmt.Errorf("snapshot: write checksum: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("snapshot: flush: %w", err)
	}
	return nil
}

// rotate shifts Filename.(i) to Filename.(i+1), dropping the oldest, and
// moves the current snapshot to Filename.1.
func (m *Manager) rotate() error {
	if m.cfg.Keep == 0 {
		return nil
	}
	if _, err := os.Stat(m.Path()); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	_ = os.Remove(m.rotatedPath(m.cfg.Keep))
	for i := m.cfg.Keep - 1; i >= 1; i-- {
		err := os.Rename(m.rotatedPath(i), m.rotatedPath(i+1))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("snapshot: rotate: %w", err)
		}
	}
	if err := os.Rename(m.Path(), m.rotatedPath(1)); err != nil {
		return fmt.Errorf("snapshot: rotate: %w", err)
	}
	return nil
}

// Load reads the newest valid snapshot and calls fn for every pair. A
// damaged current file falls back to the rotated copies. No file at all
// is not an error.
func (m *Manager) Load(ctx context.Context, fn storage.LoadFunc) error {
	paths := []string{m.Path()}
	for i := 1; i <= m.cfg.Keep; i++ {
		paths = append(paths, m.rotatedPath(i))
	}

	var lastErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, body, err := m.readFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) || errors.Is(err, ErrMalformed) {
				m.logger.Warn("skipping damaged snapshot", "path", p, "error", err)
				lastErr = err
				continue
			}
			return err
		}
		if err := decodeBody(body, fn); err != nil {
			return err
		}
		m.logger.Info("snapshot loaded", "path", p, "keys", hdr.Keys)
		return nil
	}
	if lastErr != nil {
		return domain.ErrSnapshotCorrupt.WithCause(lastErr)
	}
	return nil
}

// readFile verifies and decodes path, returning the plaintext body.
func (m *Manager) readFile(path string) (*fileHeader, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	hdr, hdrJSON, body, err := parseFile(data)
	if err != nil {
		return nil, nil, err
	}
	if !hdr.Encrypted {
		return hdr, body, nil
	}

	if len(m.cfg.Passphrase) == 0 {
		return nil, nil, ErrNoPassphrase
	}
	if hdr.KDF == nil || len(hdr.Salt) == 0 {
		return nil, nil, fmt.Errorf("%w: missing key derivation parameters", ErrMalformed)
	}
	c, err := adaptive.NewWithType(adaptive.DeriveKey(m.cfg.Passphrase, hdr.Salt, *hdr.KDF), adaptive.CipherType(hdr.Cipher))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	plain, err := c.Decrypt(body, hdrJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return hdr, plain, nil
}

// parseFile checks the checksum and splits data into its sections.
func parseFile(data []byte) (*fileHeader, []byte, []byte, error) {
	if len(data) < len(magicBytes)+4+8+checksumSize {
		return nil, nil, nil, fmt.Errorf("%w: file too short", ErrChecksumMismatch)
	}
	content, trailer := data[:len(data)-checksumSize], data[len(data)-checksumSize:]
	sum := sha256.Sum256(content)
	if !bytes.Equal(sum[:], trailer) {
		return nil, nil, nil, ErrChecksumMismatch
	}
	if !bytes.Equal(content[:len(magicBytes)], magicBytes) {
		return nil, nil, nil, ErrInvalidMagic
	}
	rest := content[len(magicBytes):]

	hdrLen := binary.BigEndian.Uint32(rest)
	rest = rest[4:]
	if uint64(hdrLen) > uint64(len(rest)) {
		return nil, nil, nil, fmt.Errorf("%w: header length", ErrMalformed)
	}
	hdrJSON := rest[:hdrLen]
	rest = rest[hdrLen:]

	var hdr fileHeader
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: header: %w", ErrMalformed, err)
	}
	if hdr.Version != headerVersion {
		return nil, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, hdr.Version)
	}

	if len(rest) < 8 {
		return nil, nil, nil, fmt.Errorf("%w: body length", ErrMalformed)
	}
	bodyLen := binary.BigEndian.Uint64(rest)
	rest = rest[8:]
	if bodyLen != uint64(len(rest)) {
		return nil, nil, nil, fmt.Errorf("%w: body length %d, have %d", ErrMalformed, bodyLen, len(rest))
	}
	return &hdr, hdrJSON, rest, nil
}

// List describes the current snapshot and its rotated copies, newest
// first. Files that cannot be parsed are omitted.
func (m *Manager) List() ([]Info, error) {
	paths := []string{m.Path()}
	for i := 1; i <= m.cfg.Keep; i++ {
		paths = append(paths, m.rotatedPath(i))
	}

	var out []Info
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		hdr, _, _, err := parseFile(data)
		if err != nil {
			continue
		}
		out = append(out, Info{
			Path:      p,
			CreatedAt: time.UnixMilli(hdr.CreatedAt),
			Keys:      hdr.Keys,
			Encrypted: hdr.Encrypted,
			Size:      int64(len(data)),
			Checksum:  hex.EncodeToString(data[len(data)-checksumSize:]),
		})
	}
	return out, nil
}

// Close implements storage.Persister.
func (m *Manager) Close() error {
	return nil
}
