// Package storage keeps run screenshots on local disk under opaque keys.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// ErrInvalidKey is returned for keys that were not produced by Put.
var ErrInvalidKey = errors.New("invalid storage key")

// DefaultMaxBytes is the stored size budget for one screenshot.
const DefaultMaxBytes = 1_000_000

var extMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Object describes a stored blob.
type Object struct {
	Key         string
	Size        int64
	ContentType string
}

// DiskStore writes blobs to Base and exposes them under URLPrefix.
type DiskStore struct {
	Base      string
	URLPrefix string
	MaxBytes  int64
}

func NewDiskStore(base, urlPrefix string, maxBytes int64) (*DiskStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &DiskStore{Base: base, URLPrefix: strings.TrimRight(urlPrefix, "/"), MaxBytes: maxBytes}, nil
}

// Put stores data under a fresh uuid key, keeping the original extension.
// Images larger than MaxBytes are downscaled before they are written.
func (s *DiskStore) Put(fileName string, data []byte) (Object, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := extMime[ext]; !ok {
		ext = ".bin"
	}
	key := uuid.NewString() + ext
	if int64(len(data)) > s.MaxBytes {
		if shrunk, err := shrink(data, ext, s.MaxBytes); err == nil {
			data = shrunk
		}
	}
	if err := writeAtomic(filepath.Join(s.Base, key), data); err != nil {
		return Object{}, err
	}
	return Object{Key: key, Size: int64(len(data)), ContentType: contentType(ext, data)}, nil
}

// Open returns a reader for key.
func (s *DiskStore) Open(key string) (*os.File, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *DiskStore) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// URL returns the public path of key.
func (s *DiskStore) URL(key string) string {
	return s.URLPrefix + "/" + key
}

func (s *DiskStore) path(key string) (string, error) {
	if key == "" || key != path.Base(key) || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.Base, key), nil
}

func contentType(ext string, data []byte) string {
	if m, ok := extMime[ext]; ok {
		return m
	}
	return http.DetectContentType(data)
}

// shrink downscales an image by sqrt(budget/size), with one further 80%
// pass if the result is still over budget.
func shrink(data []byte, ext string, maxBytes int64) ([]byte, error) {
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	scale := math.Sqrt(float64(maxBytes) / float64(len(data)))
	if scale > 0.95 {
		scale = 0.95
	}
	if scale < 0.1 {
		scale = 0.1
	}
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	h := int(math.Max(1, math.Round(float64(img.Bounds().Dy())*scale)))
	resized := imaging.Resize(img, w, h, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format); err != nil {
		return nil, err
	}
	if int64(buf.Len()) > maxBytes {
		resized = imaging.Resize(resized, int(float64(resized.Bounds().Dx())*0.8), 0, imaging.Lanczos)
		buf.Reset()
		if err := imaging.Encode(&buf, resized, format); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeAtomic(dst string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
