// Package loader walks the dynamic library dependencies of a Mach-O image the
// way dyld searches for them.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/apex/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/blacktop/execbin/pkg/macho"
)

const defaultCacheSize = 128

// systemPrefixes hold the libraries that ship inside the dyld shared cache
// and are no longer present on disk.
var systemPrefixes = []string{
	"/usr/lib/",
	"/System/Library/",
	"/System/iOSSupport/",
}

// Config is the dependency walker config
type Config struct {
	// Arch selects the slice of a universal root image; dependencies are
	// always opened with the root's arch.
	Arch string
	// MaxDepth limits how many load command levels are followed (0 means no limit).
	MaxDepth int
	// CacheSize is the number of parsed images kept between walks.
	CacheSize int
	// FallbackPaths are searched by leaf name (or framework path) when every
	// candidate location of an install name is missing.
	FallbackPaths []string
	// Strict makes Walk fail when a library that is not weak-linked is missing.
	Strict bool
	// Root is prepended to absolute locations before they are tried, like
	// DYLD_ROOT_PATH for a simulator runtime.
	Root string
}

// Walker resolves dependency graphs. It is safe for concurrent use.
type Walker struct {
	conf  Config
	cache *lru.Cache[string, *macho.Binary]
}

// NewWalker creates a Walker from conf.
func NewWalker(conf *Config) (*Walker, error) {
	if conf == nil {
		conf = &Config{}
	}
	if conf.MaxDepth < 0 {
		return nil, fmt.Errorf("invalid max depth %d: must not be negative", conf.MaxDepth)
	}
	size := conf.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, *macho.Binary](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}
	w := &Walker{conf: *conf, cache: cache}
	w.conf.FallbackPaths = append([]string(nil), conf.FallbackPaths...)
	return w, nil
}

// MissingError is returned by a strict Walk. It lists the install names of
// the required libraries that could not be found.
type MissingError struct {
	Libraries []string
}

func (e *MissingError) Error() string {
	if len(e.Libraries) == 1 {
		return fmt.Sprintf("missing library %s", e.Libraries[0])
	}
	return fmt.Sprintf("%d missing libraries: %s", len(e.Libraries), strings.Join(e.Libraries, ", "))
}

type pending struct {
	node *Node
	// resolved rpaths of every image that loaded node, nearest first
	inherited []string
}

// Walk opens the image at path and follows its dylib load commands
// breadth first. Each library becomes one node no matter how many images
// load it, so cycles terminate. A strict walk that finds missing libraries
// returns the complete graph along with a *MissingError.
func (w *Walker) Walk(ctx context.Context, path string) (*Graph, error) {
	exe, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path of %s: %w", path, err)
	}
	exe = canonical(exe)

	root, err := w.open(exe, w.conf.Arch)
	if err != nil {
		return nil, err
	}
	arch := root.Arch()

	g := newGraph(&Node{Path: exe, Binary: root})

	queue := []pending{{node: g.root}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]

		if w.conf.MaxDepth > 0 && cur.node.Depth >= w.conf.MaxDepth {
			continue
		}

		img := cur.node.Binary
		inherited := append(img.ResolveRpaths(exe), cur.inherited...)

		for _, dylib := range img.Dylibs() {
			candidates := w.candidates(img.ResolveDylib(dylib.Path, exe, cur.inherited...), dylib.Path)

			found, bin, tried := w.locate(candidates, arch)
			key := found
			if key == "" {
				key = dylib.Path
			}

			child, seen := g.nodes[key]
			if !seen {
				child = &Node{
					Path:        key,
					InstallName: dylib.Path,
					Kind:        dylib.Kind,
					Depth:       cur.node.Depth + 1,
					Binary:      bin,
				}
				if bin == nil {
					child.Missing = true
					child.System = isSystemPath(dylib.Path)
					child.Tried = tried
				}
				g.add(child)

				log.WithFields(log.Fields{
					"image":   filepath.Base(cur.node.Path),
					"dylib":   dylib.Path,
					"kind":    dylib.Kind,
					"path":    found,
					"missing": child.Missing,
				}).Debug("Resolved dylib")

				if bin != nil {
					queue = append(queue, pending{node: child, inherited: inherited})
				}
			} else if child.Kind == macho.Weak && dylib.Kind != macho.Weak {
				child.Kind = dylib.Kind
			}

			if err := g.link(cur.node, child, dylib.Kind); err != nil {
				return nil, err
			}
		}
	}

	if w.conf.Strict {
		var required []string
		for _, n := range g.Missing() {
			if n.Kind != macho.Weak {
				required = append(required, n.InstallName)
			}
		}
		if len(required) > 0 {
			return g, &MissingError{Libraries: required}
		}
	}

	return g, nil
}

// candidates adds the Root prefixed and fallback locations to the locations
// dyld derives from the install name.
func (w *Walker) candidates(resolved []string, installName string) []string {
	var out []string
	withRoot := func(p string) {
		if w.conf.Root != "" && filepath.IsAbs(p) && !strings.HasPrefix(p, w.conf.Root+string(filepath.Separator)) {
			out = append(out, filepath.Join(w.conf.Root, p))
		}
		out = append(out, filepath.Clean(p))
	}
	for _, p := range resolved {
		withRoot(p)
	}
	leaf := fallbackName(installName)
	for _, dir := range w.conf.FallbackPaths {
		withRoot(filepath.Join(dir, leaf))
	}
	return out
}

// fallbackName is the part of an install name searched for in the fallback
// paths: Foo.framework/Foo for frameworks and the leaf name otherwise.
func fallbackName(installName string) string {
	if i := strings.LastIndex(installName, ".framework/"); i >= 0 {
		if j := strings.LastIndex(installName[:i], "/"); j >= 0 {
			return installName[j+1:]
		}
		return installName
	}
	return filepath.Base(installName)
}

func isSystemPath(installName string) bool {
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(installName, prefix) {
			return true
		}
	}
	return false
}

// locate returns the first candidate that is a regular file holding the arch.
func (w *Walker) locate(candidates []string, arch string) (string, *macho.Binary, []string) {
	var tried []string
	for _, candidate := range candidates {
		if slices.Contains(tried, candidate) {
			continue
		}
		tried = append(tried, candidate)

		fi, err := os.Stat(candidate)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		path := canonical(candidate)
		bin, err := w.open(path, arch)
		if err != nil {
			log.WithError(err).WithField("path", candidate).Debug("Skipping candidate")
			continue
		}
		return path, bin, tried
	}
	return "", nil, tried
}

func (w *Walker) open(path, arch string) (*macho.Binary, error) {
	key := path + "#" + arch
	if bin, ok := w.cache.Get(key); ok {
		return bin, nil
	}
	var opts []macho.Option
	if arch != "" {
		opts = append(opts, macho.WithArch(arch))
	}
	bin, err := macho.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	w.cache.Add(key, bin)
	return bin, nil
}

func canonical(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

// IsMissing reports whether err is a strict walk failure.
func IsMissing(err error) bool {
	var merr *MissingError
	return errors.As(err, &merr)
}
