package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blacktop/execbin/internal/machotest"
	"github.com/blacktop/go-macho/types"
)

const appInfo = `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
	<key>CFBundleExecutable</key>
	<string>Foo</string>
	<key>CFBundleIdentifier</key>
	<string>io.blacktop.Foo</string>
</dict>
</plist>
`

func TestResolveInput(t *testing.T) {
	dir := t.TempDir()

	exe := filepath.Join(dir, "a.out")
	if err := machotest.New64(types.CPUArm64, types.CPUSubtypeArm64All).LoadDylib("/usr/lib/libSystem.B.dylib").WriteFile(exe); err != nil {
		t.Fatal(err)
	}
	app := filepath.Join(dir, "Foo.app")
	if err := os.MkdirAll(app, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(app, "Info.plist"), []byte(appInfo), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := machotest.New64(types.CPUArm64, types.CPUSubtypeArm64All).WriteFile(filepath.Join(app, "Foo")); err != nil {
		t.Fatal(err)
	}
	text := filepath.Join(dir, "README")
	if err := os.WriteFile(text, []byte("not a binary\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		arg      string
		wantPath string
		wantApp  bool
		wantErr  string
	}{
		{"macho", exe, exe, false, ""},
		{"unclean path", dir + "/./a.out", exe, false, ""},
		{"app bundle", app + "/", filepath.Join(app, "Foo"), true, ""},
		{"not macho", text, "", false, "not a macho file"},
		{"missing", filepath.Join(dir, "nope"), "", false, "does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveInput(tt.arg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("resolveInput() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveInput() error = %v", err)
			}
			if got.Path != tt.wantPath {
				t.Errorf("resolveInput() path = %s, want %s", got.Path, tt.wantPath)
			}
			if (got.App != nil) != tt.wantApp {
				t.Errorf("resolveInput() app = %v, want %t", got.App, tt.wantApp)
			}
			if got.Size == 0 {
				t.Error("resolveInput() size = 0")
			}
		})
	}
}
