package macho

import (
	"path/filepath"
	"strings"
)

const (
	executablePathToken = "@executable_path"
	loaderPathToken     = "@loader_path"
	rpathToken          = "@rpath"
)

// hasToken reports whether p is tok or starts with tok followed by a separator.
func hasToken(p, tok string) bool {
	return p == tok || strings.HasPrefix(p, tok+"/")
}

func expand(p, tok, dir string) string {
	return filepath.Join(dir, strings.TrimPrefix(p, tok))
}

// dir is the absolute directory containing the image.
func (b *Binary) dir() string {
	return imageDir(b.path)
}

func imageDir(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Dir(path)
}

// AbsoluteRpaths resolves Rpaths with this image as the main executable:
// @executable_path and @loader_path become the directory containing Path().
// Absolute entries are returned unchanged and relative entries pass through
// verbatim. Order and duplicates are preserved.
func (b *Binary) AbsoluteRpaths() []string {
	return b.ResolveRpaths("")
}

// ResolveRpaths resolves Rpaths for this image loaded by the main executable
// at executablePath; @loader_path always refers to this image. An empty
// executablePath means this image is the main executable.
func (b *Binary) ResolveRpaths(executablePath string) []string {
	loaderDir := b.dir()
	execDir := loaderDir
	if executablePath != "" {
		execDir = imageDir(executablePath)
	}

	resolved := make([]string, 0, len(b.rpaths))
	for _, rpath := range b.rpaths {
		switch {
		case hasToken(rpath, executablePathToken):
			resolved = append(resolved, expand(rpath, executablePathToken, execDir))
		case hasToken(rpath, loaderPathToken):
			resolved = append(resolved, expand(rpath, loaderPathToken, loaderDir))
		default:
			resolved = append(resolved, rpath)
		}
	}
	return resolved
}

// ResolveDylib returns the candidate locations of the install name, in the
// order dyld would try them. @rpath/ is expanded against this image's
// resolved rpaths followed by inherited (the already resolved rpaths of the
// images that loaded this one, nearest first). Absolute and unrecognized
// names are returned as the only candidate.
func (b *Binary) ResolveDylib(name, executablePath string, inherited ...string) []string {
	switch {
	case hasToken(name, rpathToken):
		var candidates []string
		for _, rpath := range append(b.ResolveRpaths(executablePath), inherited...) {
			candidates = append(candidates, expand(name, rpathToken, rpath))
		}
		return candidates
	case hasToken(name, executablePathToken):
		execDir := b.dir()
		if executablePath != "" {
			execDir = imageDir(executablePath)
		}
		return []string{expand(name, executablePathToken, execDir)}
	case hasToken(name, loaderPathToken):
		return []string{expand(name, loaderPathToken, b.dir())}
	}
	return []string{name}
}
