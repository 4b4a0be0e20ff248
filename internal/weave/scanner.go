package weave

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/solatis/weaver/internal/classfile"
)

const classExt = ".class"

// Candidate is a class file accepted by the scanner.
type Candidate struct {
	Path string // canonical file path
	Root string // directory the package path starts under
	Name string // binary class name
}

// ClassMetadataProvider answers class lookups for one candidate.
type ClassMetadataProvider interface {
	Lookup(name string) (*classfile.Class, bool, error)
	Ancestors(c *classfile.Class) ([]*classfile.Class, error)
	Close() error
}

// ProviderFactory opens a fresh provider for the classes root of one
// candidate. Providers are never shared between candidates.
type ProviderFactory func(root string) (ClassMetadataProvider, error)

// PoolFactory returns a factory of classfile pools searching the candidate
// root, then classpath, then the boot classpath.
func PoolFactory(logger *slog.Logger, classpath, bootClasspath []string) ProviderFactory {
	return func(root string) (ClassMetadataProvider, error) {
		paths := make([]string, 0, 1+len(classpath)+len(bootClasspath))
		paths = append(paths, root)
		paths = append(paths, classpath...)
		paths = append(paths, bootClasspath...)
		pool, err := classfile.NewPool(logger, paths...)
		if err != nil {
			return nil, err
		}
		return pool, nil
	}
}

// Scan walks every root depth-first in lexical order and calls fn for each
// class file in pkg or one of its sub-packages. An empty pkg accepts every
// class. Scanning stops at the first error fn returns.
func Scan(ctx context.Context, logger *slog.Logger, roots []string, pkg string, fn func(Candidate) error) error {
	pkgPath := strings.ReplaceAll(strings.Trim(pkg, "."), ".", "/")

	for _, root := range roots {
		canonical, err := canonicalPath(root)
		if err != nil {
			return fmt.Errorf("failed to resolve classes directory %s: %w", root, err)
		}
		logger.Debug("scanning classes", slog.String("root", canonical), slog.String("package", pkg))

		var files []string
		err = filepath.WalkDir(canonical, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, classExt) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", canonical, err)
		}
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, ok := candidateFor(path, canonical, pkgPath)
			if !ok {
				continue
			}
			if err := fn(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// candidateFor derives the class name of path by locating the package path
// as a whole run of path segments.
func candidateFor(path, root, pkgPath string) (Candidate, bool) {
	slashed := filepath.ToSlash(path)
	rel := strings.TrimPrefix(slashed, filepath.ToSlash(root))

	var classRoot, name string
	if pkgPath == "" {
		classRoot = root
		name = strings.TrimPrefix(rel, "/")
	} else {
		idx := strings.Index(rel, "/"+pkgPath+"/")
		if idx < 0 {
			return Candidate{}, false
		}
		classRoot = filepath.FromSlash(filepath.ToSlash(root) + rel[:idx])
		name = rel[idx+1:]
	}
	name = strings.ReplaceAll(strings.TrimSuffix(name, classExt), "/", ".")

	base := name[strings.LastIndexByte(name, '.')+1:]
	if base == "module-info" || base == "package-info" {
		return Candidate{}, false
	}
	return Candidate{Path: path, Root: classRoot, Name: name}, true
}
