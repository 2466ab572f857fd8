// Package migrations holds the embedded database schema and the runner
// that applies it. Migration files are templates over the environment's
// table prefix, so dev_/test_/prod_ schemas can share one database.
package migrations

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var files embed.FS

// Render substitutes the table prefix into the embedded migration files
// and returns them as an in-memory filesystem golang-migrate can read.
func Render(prefix string) (fs.FS, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}

	rendered := renderedFS{}
	for _, entry := range entries {
		data, err := files.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		rendered[entry.Name()] = []byte(strings.ReplaceAll(string(data), "{{prefix}}", prefix))
	}
	return rendered, nil
}

// renderedFS serves the prefix-substituted migration files from memory as a
// flat single-directory filesystem.
type renderedFS map[string][]byte

func (r renderedFS) Open(name string) (fs.File, error) {
	data, ok := r[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &renderedFile{
		Reader: bytes.NewReader(data),
		info:   renderedFileInfo{name: name, size: int64(len(data))},
	}, nil
}

func (r renderedFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if name != "." {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)

	entries := make([]fs.DirEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, fs.FileInfoToDirEntry(renderedFileInfo{name: n, size: int64(len(r[n]))}))
	}
	return entries, nil
}

type renderedFile struct {
	*bytes.Reader
	info renderedFileInfo
}

func (f *renderedFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *renderedFile) Close() error               { return nil }

type renderedFileInfo struct {
	name string
	size int64
}

func (fi renderedFileInfo) Name() string       { return fi.name }
func (fi renderedFileInfo) Size() int64        { return fi.size }
func (fi renderedFileInfo) Mode() fs.FileMode  { return 0444 }
func (fi renderedFileInfo) ModTime() time.Time { return time.Time{} }
func (fi renderedFileInfo) IsDir() bool        { return false }
func (fi renderedFileInfo) Sys() any           { return nil }

// Run applies migrations against the database. direction is "up" or
// "down"; steps of 0 means all the way.
func Run(dsn, prefix, direction string, steps int) error {
	src, err := Render(prefix)
	if err != nil {
		return err
	}
	driver, err := iofs.New(src, ".")
	if err != nil {
		return fmt.Errorf("opening migration source: %w", err)
	}

	// the pgx/v5 database driver registers under its own URL scheme
	dsn = strings.Replace(dsn, "postgres://", "pgx5://", 1)
	dsn = strings.Replace(dsn, "postgresql://", "pgx5://", 1)

	m, err := migrate.NewWithSourceInstance("iofs", driver, dsn)
	if err != nil {
		return fmt.Errorf("initializing migrations: %w", err)
	}
	defer m.Close()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("unknown direction: %s", direction)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
