package vm

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrImageNotFound indicates the requested image doesn't exist
var ErrImageNotFound = errors.New("image not found")

// ImageStore is a content-addressed SQLite store for compiled program
// images. Images are keyed by the SHA-256 of their canonical CBOR
// bytes, with a separate name table mapping labels to hashes.
type ImageStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// OpenImageStore opens (or creates) an image store at the given path.
func OpenImageStore(dbPath string) (*ImageStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS images (
		hash TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating images table: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS names (
		name TEXT PRIMARY KEY,
		hash TEXT NOT NULL REFERENCES images(hash)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating names table: %w", err)
	}

	return &ImageStore{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection
func (s *ImageStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores image bytes and returns their content hash. Storing the
// same bytes twice is a no-op.
func (s *ImageStore) Put(data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := ImageHash(data)
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO images (hash, data) VALUES (?, ?)",
		hash, data,
	)
	if err != nil {
		return "", fmt.Errorf("storing image: %w", err)
	}
	return hash, nil
}

// Get retrieves image bytes by content hash.
func (s *ImageStore) Get(hash string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM images WHERE hash = ?", hash).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("querying image: %w", err)
	}
	return data, nil
}

// Has reports whether the store contains an image with the given hash.
func (s *ImageStore) Has(hash string) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM images WHERE hash = ?", hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying image: %w", err)
	}
	return n > 0, nil
}

// Tag binds a name to an image hash, replacing any previous binding.
func (s *ImageStore) Tag(name, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.Has(hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrImageNotFound
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO names (name, hash) VALUES (?, ?)",
		name, hash,
	)
	if err != nil {
		return fmt.Errorf("tagging image: %w", err)
	}
	return nil
}

// Resolve returns the hash bound to a name.
func (s *ImageStore) Resolve(name string) (string, error) {
	var hash string
	err := s.db.QueryRow("SELECT hash FROM names WHERE name = ?", name).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrImageNotFound
		}
		return "", fmt.Errorf("resolving name: %w", err)
	}
	return hash, nil
}

// Hashes returns all image hashes in the store.
func (s *ImageStore) Hashes() ([]string, error) {
	rows, err := s.db.Query("SELECT hash FROM images ORDER BY hash")
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// SaveProgram marshals a program, stores the image, and optionally
// tags it.
func (s *ImageStore) SaveProgram(p *Program, name string) (string, error) {
	data, err := MarshalImage(p)
	if err != nil {
		return "", fmt.Errorf("marshaling image: %w", err)
	}
	hash, err := s.Put(data)
	if err != nil {
		return "", err
	}
	if name != "" {
		if err := s.Tag(name, hash); err != nil {
			return "", err
		}
	}
	return hash, nil
}

// LoadProgram fetches an image by hash or name and reconstructs the
// program.
func (s *ImageStore) LoadProgram(ref string) (*Program, error) {
	data, err := s.Get(ref)
	if errors.Is(err, ErrImageNotFound) {
		hash, rerr := s.Resolve(ref)
		if rerr != nil {
			return nil, rerr
		}
		data, err = s.Get(hash)
	}
	if err != nil {
		return nil, err
	}
	return UnmarshalImage(data)
}
