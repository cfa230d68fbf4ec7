// Package storage provides SQLite implementation of the Store interface.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hyperjump/ofn/internal/models"
)

// Supported database/sql driver names.
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

const (
	defaultWordCount  = 100
	defaultWordLength = 10
	busyTimeoutMS     = 5000
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	driver     string
	wordCount  int
	wordLength int
	logger     *zap.Logger

	// writeMu serializes Commit so two images never interleave inside one store.
	writeMu sync.Mutex
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithDriver selects the database/sql driver: DriverCGO (default) or DriverPureGo.
func WithDriver(name string) Option {
	return func(s *SQLiteStore) {
		if name != "" {
			s.driver = name
		}
	}
}

// WithWordSettings sets the word count and length the store is keyed by.
func WithWordSettings(count, length int) Option {
	return func(s *SQLiteStore) {
		s.wordCount = count
		s.wordLength = length
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. Reopening a database with
// different word settings fails with a validation error.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{
		driver:     DriverCGO,
		wordCount:  defaultWordCount,
		wordLength: defaultWordLength,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.wordCount < 1 || s.wordLength < 1 {
		return nil, models.Errorf(models.KindValidation, "open store", "invalid word settings %d/%d", s.wordCount, s.wordLength)
	}
	if s.driver != DriverCGO && s.driver != DriverPureGo {
		return nil, models.Errorf(models.KindValidation, "open store", "unknown driver %q", s.driver)
	}

	memory := isMemory(dbPath)
	if !memory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, models.NewError(models.KindConnection, "open store", fmt.Errorf("failed to create database directory: %w", err))
			}
		}
	}

	db, err := sql.Open(s.driver, s.dsn(dbPath))
	if err != nil {
		return nil, models.NewError(models.KindConnection, "open store", fmt.Errorf("failed to open database: %w", err))
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, models.NewError(models.KindConnection, "open store", fmt.Errorf("failed to open database: %w", err))
	}
	s.db = db

	if !memory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, models.NewError(models.KindConnection, "open store", fmt.Errorf("failed to enable WAL: %w", err))
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, models.NewError(models.KindStorage, "open store", fmt.Errorf("failed to initialize schema: %w", err))
	}
	if err := s.checkWordSettings(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Debug("store opened",
		zap.String("path", dbPath),
		zap.String("driver", s.driver),
		zap.Int("word_count", s.wordCount),
		zap.Int("word_length", s.wordLength))
	return s, nil
}

func (s *SQLiteStore) dsn(path string) string {
	if s.driver == DriverPureGo {
		return fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", path, busyTimeoutMS)
	}
	return fmt.Sprintf("%s?_foreign_keys=1&_busy_timeout=%d", path, busyTimeoutMS)
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		image_id INTEGER PRIMARY KEY AUTOINCREMENT,
		ref TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		digest BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_images_digest ON images(digest);

	CREATE TABLE IF NOT EXISTS signatures (
		signature_id INTEGER PRIMARY KEY AUTOINCREMENT,
		image_id INTEGER NOT NULL UNIQUE,
		compressed_signature BLOB NOT NULL,
		size INTEGER NOT NULL,
		FOREIGN KEY (image_id) REFERENCES images(image_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS words (
		signature_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		compressed_word BLOB NOT NULL,
		PRIMARY KEY (signature_id, position),
		FOREIGN KEY (signature_id) REFERENCES signatures(signature_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_words_position_word ON words(position, compressed_word);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// checkWordSettings records the word settings on first open and rejects a mismatch afterwards.
func (s *SQLiteStore) checkWordSettings() error {
	want := map[string]int{"word_count": s.wordCount, "word_length": s.wordLength}
	for key, val := range want {
		var stored string
		err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			if _, err := s.db.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, key, strconv.Itoa(val)); err != nil {
				return models.NewError(models.KindStorage, "open store", err)
			}
			continue
		}
		if err != nil {
			return models.NewError(models.KindStorage, "open store", err)
		}
		if stored != strconv.Itoa(val) {
			return models.Errorf(models.KindValidation, "open store", "store was created with %s=%s, configured %d", key, stored, val)
		}
	}
	return nil
}

// WordCount returns the number of words per signature this store expects.
func (s *SQLiteStore) WordCount() int { return s.wordCount }

// SaveImage inserts an image row inside tx and returns it with its new ID.
func (s *SQLiteStore) SaveImage(ctx context.Context, tx *sql.Tx, filename string, digest []byte) (*models.Image, error) {
	if digest == nil {
		digest = []byte{}
	}
	img := &models.Image{
		Ref:       uuid.New().String(),
		Filename:  filename,
		Digest:    digest,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO images (ref, filename, digest, created_at) VALUES (?, ?, ?, ?)`,
		img.Ref, img.Filename, img.Digest, img.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, models.NewError(models.KindStorage, "save image", err)
	}
	if img.ID, err = res.LastInsertId(); err != nil {
		return nil, models.NewError(models.KindStorage, "save image", err)
	}
	return img, nil
}

// SaveSignature inserts the compressed signature of imageID inside tx.
func (s *SQLiteStore) SaveSignature(ctx context.Context, tx *sql.Tx, imageID int64, compressed []byte) (*models.Signature, error) {
	sig := &models.Signature{ImageID: imageID, Compressed: compressed, Size: len(compressed)}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO signatures (image_id, compressed_signature, size) VALUES (?, ?, ?)`,
		sig.ImageID, sig.Compressed, sig.Size,
	)
	if err != nil {
		return nil, models.NewError(models.KindStorage, "save signature", err)
	}
	if sig.ID, err = res.LastInsertId(); err != nil {
		return nil, models.NewError(models.KindStorage, "save signature", err)
	}
	return sig, nil
}

// SaveWords inserts one row per position for signatureID inside tx.
// Exactly WordCount words are required.
func (s *SQLiteStore) SaveWords(ctx context.Context, tx *sql.Tx, signatureID int64, words [][]byte) error {
	if len(words) != s.wordCount {
		return models.Errorf(models.KindValidation, "save words", "got %d words, want %d", len(words), s.wordCount)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO words (signature_id, position, compressed_word) VALUES (?, ?, ?)`,
	)
	if err != nil {
		return models.NewError(models.KindStorage, "save words", err)
	}
	defer stmt.Close()

	for pos, w := range words {
		if _, err := stmt.ExecContext(ctx, signatureID, pos, w); err != nil {
			return models.NewError(models.KindStorage, "save words", fmt.Errorf("position %d: %w", pos, err))
		}
	}
	return nil
}

// Commit writes the image, signature, and words in one transaction.
// On any failure nothing is written.
func (s *SQLiteStore) Commit(ctx context.Context, filename string, digest, compressed []byte, words [][]byte) (*models.Image, *models.Signature, error) {
	img, sig, _, err := s.commit(ctx, "commit", filename, digest, compressed, words, false)
	return img, sig, err
}

// CommitIfAbsent is Commit unless an image with the same digest is already stored.
// Then nothing is written and the oldest such image is returned with a nil signature.
// The check runs inside the write transaction, so concurrent callers store a digest once.
func (s *SQLiteStore) CommitIfAbsent(ctx context.Context, filename string, digest, compressed []byte, words [][]byte) (*models.Image, *models.Signature, bool, error) {
	return s.commit(ctx, "commit if absent", filename, digest, compressed, words, true)
}

func (s *SQLiteStore) commit(ctx context.Context, op, filename string, digest, compressed []byte, words [][]byte, unique bool) (*models.Image, *models.Signature, bool, error) {
	if len(words) != s.wordCount {
		return nil, nil, false, models.Errorf(models.KindValidation, op, "got %d words, want %d", len(words), s.wordCount)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, false, models.NewError(models.KindStorage, op, err)
	}
	defer tx.Rollback()

	if unique {
		existing, err := scanImage(tx.QueryRowContext(ctx,
			`SELECT image_id, ref, filename, digest, created_at
			 FROM images WHERE digest = ? ORDER BY image_id LIMIT 1`, digest))
		switch {
		case err == nil:
			s.logger.Debug("store digest already stored",
				zap.String("filename", filename),
				zap.Int64("image_id", existing.ID))
			return existing, nil, false, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, nil, false, models.NewError(models.KindStorage, op, err)
		}
	}

	img, err := s.SaveImage(ctx, tx, filename, digest)
	if err != nil {
		return nil, nil, false, err
	}
	sig, err := s.SaveSignature(ctx, tx, img.ID, compressed)
	if err != nil {
		return nil, nil, false, err
	}
	if err := s.SaveWords(ctx, tx, sig.ID, words); err != nil {
		return nil, nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, false, models.NewError(models.KindStorage, op, err)
	}

	s.logger.Debug("store committed signature",
		zap.String("filename", filename),
		zap.Int64("image_id", img.ID),
		zap.Int64("signature_id", sig.ID))
	return img, sig, true, nil
}

// LookupCandidates matches (position, word) pairs against the words index.
// When more than limit signatures match, those sharing the most words are
// kept, ties broken by lower signature ID.
func (s *SQLiteStore) LookupCandidates(ctx context.Context, words [][]byte, limit int) (*Candidates, error) {
	c := NewCandidates()
	if len(words) == 0 {
		return c, nil
	}

	var b strings.Builder
	args := make([]any, 0, 2*len(words)+1)
	b.WriteString(`WITH q(position, compressed_word) AS (VALUES `)
	for pos, w := range words {
		if pos > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?)")
		args = append(args, pos, w)
	}
	b.WriteString(`)
	SELECT w.signature_id, COUNT(*) AS shared
	FROM words w JOIN q ON w.position = q.position AND w.compressed_word = q.compressed_word
	GROUP BY w.signature_id
	ORDER BY shared DESC, w.signature_id
	LIMIT ?`)
	if limit > 0 {
		args = append(args, limit+1)
	} else {
		args = append(args, -1)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, models.NewError(models.KindStorage, "lookup candidates", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var shared int
		if err := rows.Scan(&id, &shared); err != nil {
			return nil, models.NewError(models.KindStorage, "lookup candidates", err)
		}
		if limit > 0 && c.Len() == limit {
			c.Truncated = true
			break
		}
		c.Add(id, shared)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewError(models.KindStorage, "lookup candidates", err)
	}
	return c, nil
}

// FetchSignature returns a signature by ID.
func (s *SQLiteStore) FetchSignature(ctx context.Context, id int64) (*models.Signature, error) {
	var sig models.Signature
	err := s.db.QueryRowContext(ctx,
		`SELECT signature_id, image_id, compressed_signature, size
		 FROM signatures WHERE signature_id = ?`, id,
	).Scan(&sig.ID, &sig.ImageID, &sig.Compressed, &sig.Size)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.Errorf(models.KindNotFound, "fetch signature", "signature %d", id)
	}
	if err != nil {
		return nil, models.NewError(models.KindStorage, "fetch signature", err)
	}
	return &sig, nil
}

// FetchImageMeta returns an image by ID.
func (s *SQLiteStore) FetchImageMeta(ctx context.Context, imageID int64) (*models.Image, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT image_id, ref, filename, digest, created_at FROM images WHERE image_id = ?`, imageID)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.Errorf(models.KindNotFound, "fetch image", "image %d", imageID)
	}
	if err != nil {
		return nil, models.NewError(models.KindStorage, "fetch image", err)
	}
	return img, nil
}

// FindImagesByDigest returns images whose content digest equals digest, oldest first.
func (s *SQLiteStore) FindImagesByDigest(ctx context.Context, digest []byte) ([]*models.Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT image_id, ref, filename, digest, created_at
		 FROM images WHERE digest = ? ORDER BY image_id`, digest,
	)
	if err != nil {
		return nil, models.NewError(models.KindStorage, "find images", err)
	}
	defer rows.Close()

	var images []*models.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, models.NewError(models.KindStorage, "find images", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewError(models.KindStorage, "find images", err)
	}
	return images, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (*models.Image, error) {
	var img models.Image
	var createdMS int64
	if err := row.Scan(&img.ID, &img.Ref, &img.Filename, &img.Digest, &createdMS); err != nil {
		return nil, err
	}
	img.CreatedAt = time.UnixMilli(createdMS).UTC()
	return &img, nil
}

// CountImages returns the total number of images.
func (s *SQLiteStore) CountImages(ctx context.Context) (int64, error) {
	return s.count(ctx, "images")
}

// CountSignatures returns the total number of signatures.
func (s *SQLiteStore) CountSignatures(ctx context.Context) (int64, error) {
	return s.count(ctx, "signatures")
}

// CountWords returns the total number of word rows.
func (s *SQLiteStore) CountWords(ctx context.Context) (int64, error) {
	return s.count(ctx, "words")
}

func (s *SQLiteStore) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, models.NewError(models.KindStorage, "count "+table, err)
	}
	return n, nil
}

// DB exposes the underlying handle for maintenance and tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
