package fichiers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
)

// Metadata describes a stored file.
type Metadata struct {
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	FileType   string    `json:"file_type,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Store keeps files flat in a single directory and mirrors them in an Index.
type Store struct {
	dir   string
	index *Index
	log   *zap.Logger
	now   func() time.Time
}

func NewStore(dir string, index *Index, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
		logger.Info("storage directory created", zap.String("dir", dir))
	}
	return &Store{
		dir:   dir,
		index: index,
		log:   logger,
		now:   time.Now,
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// ValidName reports whether name is a single, non-hidden path element.
func ValidName(name string) bool {
	if len(name) == 0 || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

func (s *Store) path(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Save writes r under name, replacing any existing file, and indexes it.
func (s *Store) Save(ctx context.Context, name string, r io.Reader) (FileEntity, error) {
	p, err := s.path(name)
	if err != nil {
		return FileEntity{}, err
	}

	// write to a temp file first so a failed upload leaves the old one intact
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return FileEntity{}, err
	}
	size, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Chmod(0644)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return FileEntity{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return FileEntity{}, fmt.Errorf("write %s: %w", name, err)
	}

	return s.indexFile(ctx, name, size)
}

func (s *Store) indexFile(ctx context.Context, name string, size int64) (FileEntity, error) {
	e := FileEntity{
		Filename:   name,
		Size:       size,
		FileType:   fileType(name),
		FilePath:   filepath.Join(s.dir, name),
		UploadedAt: s.now(),
	}
	if s.index == nil {
		return e, nil
	}
	return s.index.Upsert(ctx, e)
}

// Convert writes data converted to format next to the other files and
// returns the converted file's name.
func (s *Store) Convert(ctx context.Context, name string, data io.Reader, format Format) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	var buf bytes.Buffer
	if err := format.Convert(&buf, data); err != nil {
		return "", fmt.Errorf("convert %s to %s: %w", name, format, err)
	}
	out := format.ConvertedName(name)
	if _, err := s.Save(ctx, out, &buf); err != nil {
		return "", err
	}
	return out, nil
}

func (s *Store) Exists(name string) bool {
	p, err := s.path(name)
	if err != nil {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// List returns the names of the stored files, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() || !ValidName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Open returns the file for reading. The caller closes it.
func (s *Store) Open(name string) (*os.File, os.FileInfo, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !fi.Mode().IsRegular() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, fi, nil
}

func (s *Store) Metadata(ctx context.Context, name string) (Metadata, error) {
	p, err := s.path(name)
	if err != nil {
		return Metadata{}, err
	}
	fi, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return Metadata{}, ErrNotFound
	}
	if err != nil {
		return Metadata{}, err
	}

	md := Metadata{
		Filename:   name,
		Size:       fi.Size(),
		FileType:   fileType(name),
		UploadedAt: fi.ModTime(),
		ModifiedAt: fi.ModTime(),
	}
	if s.index != nil {
		e, err := s.index.Get(ctx, name)
		switch {
		case err == nil:
			md.UploadedAt = e.UploadedAt
			if len(e.FileType) > 0 {
				md.FileType = e.FileType
			}
		case !errors.Is(err, ErrNotFound):
			return Metadata{}, err
		}
	}
	return md, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if s.index != nil {
		return s.index.Delete(ctx, name)
	}
	return nil
}

func fileType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t := mime.TypeByExtension(ext); len(t) > 0 {
		return t
	}
	switch ext {
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".csv":
		return "text/csv; charset=utf-8"
	}
	return ""
}
