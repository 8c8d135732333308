// Package fsstore is an object store on the local filesystem. Every storage tier is a directory.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cschleiden/go-mediaflow/stages"
)

type Options struct {
	// Landing is the directory assets land in, one directory per asset.
	Landing string

	// Working is the directory moves involving the archive tier are staged in.
	Working string

	// Tiers maps every tier to its directory.
	Tiers map[stages.Tier]string
}

type Store struct {
	landing string
	working string
	tiers   map[stages.Tier]string
}

var _ stages.ObjectStore = (*Store)(nil)

func New(options Options) (*Store, error) {
	if options.Working == "" {
		return nil, errors.New("working directory is required")
	}

	s := &Store{
		landing: filepath.Clean(options.Landing),
		working: filepath.Clean(options.Working),
		tiers:   make(map[stages.Tier]string),
	}

	for _, t := range []stages.Tier{stages.TierCDN, stages.TierNearLine, stages.TierArchive} {
		dir, ok := options.Tiers[t]
		if !ok || dir == "" {
			return nil, fmt.Errorf("no directory for tier %s", t)
		}

		s.tiers[t] = filepath.Clean(dir)
	}

	for _, dir := range append([]string{s.working}, s.tierDirs()...) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	return s, nil
}

func (s *Store) tierDirs() []string {
	dirs := make([]string, 0, len(s.tiers))
	for _, d := range s.tiers {
		dirs = append(dirs, d)
	}

	return dirs
}

func (s *Store) objectDir(key string, tier stages.Tier) (string, error) {
	root, ok := s.tiers[tier]
	if !ok {
		return "", fmt.Errorf("unknown tier %q", tier)
	}

	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid object key %q", key)
	}

	return filepath.Join(root, key), nil
}

func (s *Store) Open(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (s *Store) Dir(_ context.Context, path, name string) (string, error) {
	dir := filepath.Join(filepath.Dir(path), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	return dir, nil
}

func (s *Store) Publish(ctx context.Context, dir, key string, tier stages.Tier) error {
	dst, err := s.objectDir(key, tier)
	if err != nil {
		return err
	}

	return copyTree(ctx, dir, dst)
}

func (s *Store) Move(ctx context.Context, key string, from, to stages.Tier) (string, error) {
	src, err := s.objectDir(key, from)
	if err != nil {
		return "", err
	}

	dst, err := s.objectDir(key, to)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		// Redelivered after the move went through
		if _, err := os.Stat(dst); err == nil {
			return "", nil
		}

		return "", fmt.Errorf("object %s not found in %s: %w", key, from, err)
	}

	if from != stages.TierArchive && to != stages.TierArchive {
		if err := os.RemoveAll(dst); err != nil {
			return "", err
		}

		return "", os.Rename(src, dst)
	}

	// Archive moves are staged through the working area
	staging := filepath.Join(s.working, key+"-"+uuid.NewString())
	if err := copyTree(ctx, src, staging); err != nil {
		return "", fmt.Errorf("staging %s: %w", key, err)
	}

	if err := copyTree(ctx, staging, dst); err != nil {
		return staging, fmt.Errorf("copying %s to %s: %w", key, to, err)
	}

	if err := os.RemoveAll(src); err != nil {
		return staging, fmt.Errorf("removing %s from %s: %w", key, from, err)
	}

	return staging, nil
}

func (s *Store) Delete(_ context.Context, key string, tier stages.Tier) error {
	dir, err := s.objectDir(key, tier)
	if err != nil {
		return err
	}

	return os.RemoveAll(dir)
}

func (s *Store) RemoveAll(_ context.Context, dir string) error {
	dir = filepath.Clean(dir)
	if !within(s.landing, dir) && !within(s.working, dir) {
		return fmt.Errorf("refusing to remove %s outside of the landing and working areas", dir)
	}

	return os.RemoveAll(dir)
}

// within reports whether path is strictly below root.
func within(root, path string) bool {
	if root == "" || root == "." {
		return false
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
