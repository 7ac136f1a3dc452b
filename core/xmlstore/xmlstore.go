// Package xmlstore resolves source URIs of descriptors and transcripts to
// byte streams below a storage root directory.
//
// Storage URIs have the form faust://xml/<path>. file:// URIs and plain
// filesystem paths are accepted as well. Files compressed with xz are
// decompressed transparently.
package xmlstore

import (
	"bufio"
	"encoding/hex"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/internal/validation"
)

// Scheme and host of storage URIs.
const (
	Scheme = "faust"
	Host   = "xml"
)

// BaseURI is the URI of the storage root.
const BaseURI = Scheme + "://" + Host + "/"

// Store maps storage URIs onto files below a root directory.
type Store struct {
	root string
}

// New returns a store rooted at dir. The directory must exist.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, apperrors.NewIO("resolve", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, apperrors.NewIO("stat", abs, err)
	}
	if !info.IsDir() {
		return nil, apperrors.NewValidation("xml_root", abs+" is not a directory")
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute storage root.
func (s *Store) Root() string {
	return s.root
}

// IsStorageURI reports whether uri uses the faust://xml/ scheme.
func IsStorageURI(uri string) bool {
	return strings.HasPrefix(uri, BaseURI)
}

// Path resolves uri to a filesystem path.
func (s *Store) Path(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", apperrors.NewValidation("uri", err.Error())
	}
	switch u.Scheme {
	case Scheme:
		if u.Host != Host {
			return "", apperrors.NewUnsupported("uri", "unknown storage host "+u.Host)
		}
		p := strings.TrimPrefix(u.Path, "/")
		if p == "" {
			return s.root, nil
		}
		rel, err := validation.SanitizePath(s.root, p)
		if err != nil {
			verr := apperrors.NewValidation("uri", err.Error())
			verr.Value = uri
			return "", verr
		}
		return filepath.Join(s.root, rel), nil
	case "file":
		return filepath.FromSlash(u.Path), nil
	case "":
		return filepath.Abs(uri)
	default:
		return "", apperrors.NewUnsupported("uri", "unsupported scheme "+u.Scheme)
	}
}

// URI returns the storage URI for a filesystem path. Paths outside the root
// are returned as file:// URIs.
func (s *Store) URI(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", apperrors.NewIO("resolve", p, err)
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
	}
	return BaseURI + filepath.ToSlash(rel), nil
}

// Exists reports whether uri resolves to a regular file.
func (s *Store) Exists(uri string) bool {
	p, err := s.Path(uri)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Open returns the content of uri, decompressing xz streams.
func (s *Store) Open(uri string) (io.ReadCloser, error) {
	p, err := s.Path(uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFound("xml source", uri)
		}
		return nil, apperrors.NewIO("open", p, err)
	}

	br := bufio.NewReader(f)
	header, _ := br.Peek(6)
	if !validation.IsXZ(header) {
		return &source{Reader: br, file: f}, nil
	}
	xr, err := xz.NewReader(br)
	if err != nil {
		f.Close()
		return nil, apperrors.NewIO("decompress", p, err)
	}
	return &source{Reader: xr, file: f}, nil
}

type source struct {
	io.Reader
	file *os.File
}

func (s *source) Close() error {
	return s.file.Close()
}

// Hash returns the hex BLAKE3 digest of the decompressed content of uri.
func (s *Store) Hash(uri string) (string, error) {
	r, err := s.Open(uri)
	if err != nil {
		return "", err
	}
	defer r.Close()

	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", apperrors.NewIO("read", uri, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsXMLSource reports whether name carries one of the source extensions.
func IsXMLSource(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".xml") || strings.HasSuffix(name, ".xml.xz")
}

// Walk returns the URIs of all XML sources below prefix in lexical order.
// Hidden files and directories are skipped.
func (s *Store) Walk(prefix string) ([]string, error) {
	dir, err := s.Path(prefix)
	if err != nil {
		return nil, err
	}

	var uris []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsXMLSource(d.Name()) {
			return nil
		}
		uri, err := s.URI(p)
		if err != nil {
			return err
		}
		uris = append(uris, uri)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFound("xml directory", prefix)
		}
		return nil, apperrors.NewIO("walk", dir, err)
	}
	sort.Strings(uris)
	return uris, nil
}

// Resolve resolves ref against base the way relative links resolve in a
// document with that base URI. An empty base returns ref unchanged.
func Resolve(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", apperrors.NewValidation("uri", err.Error())
	}
	if base == "" {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", apperrors.NewValidation("base", err.Error())
	}
	return b.ResolveReference(r).String(), nil
}

// Dir returns the URI of the directory containing uri, with a trailing slash.
func Dir(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	dir := path.Dir(u.Path)
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	u.Path = dir
	return u.String()
}
