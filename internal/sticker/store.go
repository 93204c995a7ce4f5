package sticker

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"siriuschat/internal/metrics"
	"siriuschat/internal/model"
)

// Classifier judges whether an image is sticker material.
type Classifier interface {
	Classify(ctx context.Context, imageB64 string) (model.Classification, error)
}

// Store is a content-addressed sticker catalog. Artifact bytes live on
// disk under a path derived from their hash; tags and descriptions live
// in sqlite.
type Store struct {
	db         *sql.DB
	dir        string
	classifier Classifier
	sendProb   float64
	logger     *slog.Logger
}

type Config struct {
	DBPath     string
	ImageDir   string
	Classifier Classifier
	SendProb   float64
	Logger     *slog.Logger
}

func NewStore(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.ImageDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create image directory %s: %w", cfg.ImageDir, err)
	}
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{
		db:         db,
		dir:        cfg.ImageDir,
		classifier: cfg.Classifier,
		sendProb:   cfg.SendProb,
		logger:     cfg.Logger,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sticker catalog migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stickers (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		hash        TEXT NOT NULL UNIQUE,
		tags        TEXT,
		description TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Learn normalizes and classifies one image, storing it when the
// classifier accepts it. Byte-identical images (after normalization)
// are learned at most once; the repeated call reports nothing learned.
func (s *Store) Learn(ctx context.Context, imageB64 string) (bool, error) {
	raw, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return false, fmt.Errorf("decode image payload: %w", err)
	}
	normalized, format, err := normalize(raw)
	if err != nil {
		return false, err
	}

	sum := sha256.Sum256(normalized)
	hash := hex.EncodeToString(sum[:])

	known, err := s.Has(ctx, hash)
	if err != nil {
		return false, err
	}
	if known {
		return false, nil
	}

	c, err := s.classifier.Classify(ctx, base64.StdEncoding.EncodeToString(normalized))
	if err != nil {
		return false, err
	}
	if !c.IsSticker || len(c.Tags) == 0 {
		return false, nil
	}

	tags := sanitizeTags(c.Tags)
	path := filepath.Join(s.dir, hash+"."+format)
	if err := os.WriteFile(path, normalized, 0o644); err != nil {
		return false, fmt.Errorf("write sticker %s: %w", path, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO stickers (hash, tags, description) VALUES (?, ?, ?)`,
		hash, tags, c.Description,
	)
	if err != nil {
		return false, fmt.Errorf("insert sticker %s: %w", hash, err)
	}
	metrics.StickersLearned.Inc()
	s.logger.Info("sticker learned", "hash", hash, "tags", tags)
	return true, nil
}

// Has reports whether a content hash already exists in the catalog.
func (s *Store) Has(ctx context.Context, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM stickers WHERE hash = ?`, hash,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("hash lookup: %w", err)
	}
	return n > 0, nil
}

// PickByTag returns the on-disk path of a random sticker whose tags
// contain tag, or "" when none match.
func (s *Store) PickByTag(ctx context.Context, tag string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM stickers WHERE tags LIKE ? ORDER BY RANDOM() LIMIT 1`,
		"%"+tag+"%",
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("tag lookup %q: %w", tag, err)
	}
	return s.pathOf(hash)
}

// Attach rolls the send probability and, on success, picks a sticker
// matching the emotion tag. Returns "" when the roll fails or nothing
// matches.
func (s *Store) Attach(ctx context.Context, emotion string) (string, error) {
	if rand.Float64() >= s.sendProb {
		return "", nil
	}
	return s.PickByTag(ctx, emotion)
}

// pathOf resolves a hash to its stored file, whatever extension it was
// saved with.
func (s *Store) pathOf(hash string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, hash+".*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("sticker %s has no file on disk", hash)
	}
	return matches[0], nil
}

// sanitizeTags joins the tag list, remapping tags that sit outside the
// emotion vocabulary onto their closest member.
func sanitizeTags(tags []string) string {
	joined := strings.Join(tags, ",")
	return strings.ReplaceAll(joined, "可爱", "喜悦")
}
