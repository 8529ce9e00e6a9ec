package macho

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/blacktop/execbin/internal/machotest"
	"github.com/blacktop/go-macho/types"
)

func withRpaths(t *testing.T, path string, rpaths ...string) *Binary {
	t.Helper()
	img := machotest.New64(types.CPUArm64, 0)
	for _, r := range rpaths {
		img.Rpath(r)
	}
	b, err := New(path, img.Bytes())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

func TestAbsoluteRpaths(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		rpaths []string
		want   []string
	}{
		{
			name:   "executable_path parent",
			path:   "/Apps/Foo.app/Contents/MacOS/Foo",
			rpaths: []string{"@executable_path/../Frameworks"},
			want:   []string{"/Apps/Foo.app/Contents/Frameworks"},
		},
		{
			// .. leaves the directory containing the executable, Foo.app itself
			name:   "executable_path parent of flat bundle",
			path:   "/Apps/Foo.app/Foo",
			rpaths: []string{"@executable_path/../Frameworks"},
			want:   []string{"/Apps/Frameworks"},
		},
		{
			name:   "executable_path child",
			path:   "/Apps/Foo.app/Foo",
			rpaths: []string{"@executable_path/Frameworks"},
			want:   []string{"/Apps/Foo.app/Frameworks"},
		},
		{
			name:   "loader_path",
			path:   "/usr/local/bin/tool",
			rpaths: []string{"@loader_path/../lib"},
			want:   []string{"/usr/local/lib"},
		},
		{
			name:   "bare tokens",
			path:   "/opt/bin/tool",
			rpaths: []string{"@loader_path", "@executable_path"},
			want:   []string{"/opt/bin", "/opt/bin"},
		},
		{
			name:   "absolute unchanged",
			path:   "/Apps/Foo.app/Foo",
			rpaths: []string{"/usr/lib/swift", "/Library/Frameworks/"},
			want:   []string{"/usr/lib/swift", "/Library/Frameworks/"},
		},
		{
			name:   "relative passes through",
			path:   "/Apps/Foo.app/Foo",
			rpaths: []string{"Frameworks", "../lib"},
			want:   []string{"Frameworks", "../lib"},
		},
		{
			name:   "token must be a whole path component",
			path:   "/Apps/Foo.app/Foo",
			rpaths: []string{"@executable_pathological", "@rpath/Frameworks"},
			want:   []string{"@executable_pathological", "@rpath/Frameworks"},
		},
		{
			name:   "order and duplicates preserved",
			path:   "/Apps/Foo.app/Foo",
			rpaths: []string{"@executable_path/Frameworks", "/usr/lib/swift", "@executable_path/Frameworks"},
			want:   []string{"/Apps/Foo.app/Frameworks", "/usr/lib/swift", "/Apps/Foo.app/Frameworks"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := withRpaths(t, tt.path, tt.rpaths...)
			got := b.AbsoluteRpaths()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("AbsoluteRpaths() = %v, want %v", got, tt.want)
			}
			if len(got) != len(b.Rpaths()) {
				t.Errorf("len(AbsoluteRpaths()) = %d, len(Rpaths()) = %d", len(got), len(b.Rpaths()))
			}
			if again := b.AbsoluteRpaths(); !reflect.DeepEqual(got, again) {
				t.Errorf("AbsoluteRpaths() not stable: %v then %v", got, again)
			}
		})
	}
}

func TestAbsoluteRpathsRelativeImage(t *testing.T) {
	b := withRpaths(t, "build/Foo", "@loader_path/lib")
	abs, err := filepath.Abs("build/lib")
	if err != nil {
		t.Fatal(err)
	}
	if got := b.AbsoluteRpaths(); !reflect.DeepEqual(got, []string{abs}) {
		t.Errorf("AbsoluteRpaths() = %v, want [%s]", got, abs)
	}
}

func TestResolveRpaths(t *testing.T) {
	b := withRpaths(t, "/Apps/Foo.app/Frameworks/Bar.framework/Bar",
		"@executable_path/Frameworks",
		"@loader_path/Frameworks",
	)
	want := []string{
		"/Apps/Foo.app/Frameworks",
		"/Apps/Foo.app/Frameworks/Bar.framework/Frameworks",
	}
	if got := b.ResolveRpaths("/Apps/Foo.app/Foo"); !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveRpaths() = %v, want %v", got, want)
	}
}

func TestResolveDylib(t *testing.T) {
	b := withRpaths(t, "/Apps/Foo.app/Frameworks/Bar.framework/Bar",
		"@loader_path/Frameworks",
		"/usr/lib/swift",
	)

	tests := []struct {
		name      string
		install   string
		exe       string
		inherited []string
		want      []string
	}{
		{
			name:    "absolute",
			install: "/usr/lib/libSystem.B.dylib",
			want:    []string{"/usr/lib/libSystem.B.dylib"},
		},
		{
			name:    "loader_path",
			install: "@loader_path/libBaz.dylib",
			want:    []string{"/Apps/Foo.app/Frameworks/Bar.framework/libBaz.dylib"},
		},
		{
			name:    "executable_path of the main executable",
			install: "@executable_path/libQux.dylib",
			exe:     "/Apps/Foo.app/Foo",
			want:    []string{"/Apps/Foo.app/libQux.dylib"},
		},
		{
			name:      "rpath own entries then inherited",
			install:   "@rpath/Baz.framework/Baz",
			exe:       "/Apps/Foo.app/Foo",
			inherited: []string{"/Apps/Foo.app/Frameworks"},
			want: []string{
				"/Apps/Foo.app/Frameworks/Bar.framework/Frameworks/Baz.framework/Baz",
				"/usr/lib/swift/Baz.framework/Baz",
				"/Apps/Foo.app/Frameworks/Baz.framework/Baz",
			},
		},
		{
			name:    "relative name",
			install: "libfoo.dylib",
			want:    []string{"libfoo.dylib"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.ResolveDylib(tt.install, tt.exe, tt.inherited...)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ResolveDylib(%q) = %v, want %v", tt.install, got, tt.want)
			}
		})
	}

	if got := withRpaths(t, "/bin/x").ResolveDylib("@rpath/libz.dylib", ""); len(got) != 0 {
		t.Errorf("ResolveDylib() with no rpaths = %v, want none", got)
	}
}
