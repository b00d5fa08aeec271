// Package media stores uploaded post images on local disk.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	postImageDir = "post_img"
	stagingDir   = ".staging"
)

// ErrUnsupportedType is returned for uploads that are not images we serve.
var ErrUnsupportedType = errors.New("unsupported image type")

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Storage persists post images and maps stored paths to public URLs. Uploads are staged
// first and only reach their stored path once the post referencing them has committed.
type Storage interface {
	Stage(filename string, r io.Reader) (*Staged, error)
	Commit(staged *Staged) error
	Discard(staged *Staged) error
	URL(stored string) string
}

// Staged is an upload written under a private temporary name.
type Staged struct {
	Path string // stored path relative to the media root
	temp string
}

type LocalStorage struct {
	root    string
	baseURL string
}

func NewLocalStorage(root, baseURL string) *LocalStorage {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &LocalStorage{root: root, baseURL: baseURL}
}

func (s *LocalStorage) Root() string { return s.root }

// Stage writes the upload to a temporary file. Its stored path is post_img/ plus an xxHash
// of the content, so the same image uploaded twice ends up as one file.
func (s *LocalStorage) Stage(filename string, r io.Reader) (*Staged, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	dir := filepath.Join(s.root, stagingDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return nil, err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write image: %w", err)
	}

	return &Staged{
		Path: path.Join(postImageDir, contentHash(buf.Bytes())+ext),
		temp: tmp.Name(),
	}, nil
}

// Commit moves a staged upload to its stored path. A file already there has the same
// content and is replaced atomically.
func (s *LocalStorage) Commit(staged *Staged) error {
	if staged == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Join(s.root, postImageDir), 0755); err != nil {
		return err
	}
	return os.Rename(staged.temp, filepath.Join(s.root, filepath.FromSlash(staged.Path)))
}

// Discard drops a staged upload. Stored files are never touched.
func (s *LocalStorage) Discard(staged *Staged) error {
	if staged == nil {
		return nil
	}
	err := os.Remove(staged.temp)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *LocalStorage) URL(stored string) string {
	if stored == "" {
		return ""
	}
	return s.baseURL + stored
}

func contentHash(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}
