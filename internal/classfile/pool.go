package classfile

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Pool resolves classes by binary name over an ordered search path of
// directories and jar/zip archives. Earlier entries win. Parsed classes are
// cached for the lifetime of the pool and never modified; weaving edits are
// tracked outside the pool.
type Pool struct {
	logger  *slog.Logger
	entries []pathEntry

	mu      sync.Mutex
	cache   map[string]*Class
	missing map[string]bool
	added   map[string]*Class
}

type pathEntry interface {
	open(file string) ([]byte, bool, error)
	io.Closer
}

// NewPool opens every path. Paths that do not exist are logged and skipped.
func NewPool(logger *slog.Logger, paths ...string) (*Pool, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Pool{
		logger:  logger,
		cache:   make(map[string]*Class),
		missing: make(map[string]bool),
		added:   make(map[string]*Class),
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		fi, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("classpath entry not found", slog.String("path", path))
			continue
		}
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to stat classpath entry %s: %w", path, err)
		}
		if fi.IsDir() {
			p.entries = append(p.entries, dirEntry(path))
			continue
		}
		zr, err := zip.OpenReader(path)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
		}
		p.entries = append(p.entries, &zipEntry{path: path, r: zr, index: indexZip(zr)})
	}
	return p, nil
}

// Add registers an already parsed class, shadowing the search path.
func (p *Pool) Add(c *Class) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added[c.Name] = c
}

// Lookup returns the class with the given binary name. ok is false when no
// path entry holds it.
func (p *Pool) Lookup(name string) (c *Class, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.added[name]; ok {
		return c, true, nil
	}
	if c, ok := p.cache[name]; ok {
		return c, true, nil
	}
	if p.missing[name] {
		return nil, false, nil
	}

	file := InternalName(name) + ".class"
	for _, e := range p.entries {
		data, found, err := e.open(file)
		if err != nil {
			return nil, false, err
		}
		if !found {
			continue
		}
		c, err := Parse(data)
		if err != nil {
			return nil, false, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		p.cache[name] = c
		return c, true, nil
	}
	p.missing[name] = true
	return nil, false, nil
}

// Ancestors returns the superclass chain of c, nearest first, stopping at
// java.lang.Object or the first class that cannot be found.
func (p *Pool) Ancestors(c *Class) ([]*Class, error) {
	var chain []*Class
	seen := map[string]bool{c.Name: true}
	for super := c.SuperName; super != "" && !seen[super]; {
		seen[super] = true
		sc, ok, err := p.Lookup(super)
		if err != nil {
			return nil, err
		}
		if !ok {
			p.logger.Debug("superclass chain ends at unresolved class",
				slog.String("class", c.Name), slog.String("missing", super))
			break
		}
		chain = append(chain, sc)
		super = sc.SuperName
	}
	return chain, nil
}

// Close releases open archives.
func (p *Pool) Close() error {
	var errs []error
	for _, e := range p.entries {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.entries = nil
	return errors.Join(errs...)
}

type dirEntry string

func (d dirEntry) open(file string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(string(d), filepath.FromSlash(file)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return data, true, nil
}

func (dirEntry) Close() error { return nil }

type zipEntry struct {
	path  string
	r     *zip.ReadCloser
	index map[string]*zip.File
}

func indexZip(zr *zip.ReadCloser) map[string]*zip.File {
	index := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".class") {
			index[f.Name] = f
		}
	}
	return index
}

func (z *zipEntry) open(file string) ([]byte, bool, error) {
	f, ok := z.index[file]
	if !ok {
		return nil, false, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, false, fmt.Errorf("failed to open %s in %s: %w", file, z.path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s in %s: %w", file, z.path, err)
	}
	return data, true, nil
}

func (z *zipEntry) Close() error {
	return z.r.Close()
}
