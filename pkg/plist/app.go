// Package plist reads the Info.plist of application bundles.
package plist

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/blacktop/go-plist"
)

// AppInfo is the subset of an .app Info.plist needed to locate and describe
// its main executable.
type AppInfo struct {
	CFBundleExecutable         string   `plist:"CFBundleExecutable,omitempty" json:"CFBundleExecutable,omitempty"`
	CFBundleIdentifier         string   `plist:"CFBundleIdentifier,omitempty" json:"CFBundleIdentifier,omitempty"`
	CFBundleName               string   `plist:"CFBundleName,omitempty" json:"CFBundleName,omitempty"`
	CFBundlePackageType        string   `plist:"CFBundlePackageType,omitempty" json:"CFBundlePackageType,omitempty"`
	CFBundleShortVersionString string   `plist:"CFBundleShortVersionString,omitempty" json:"CFBundleShortVersionString,omitempty"`
	CFBundleVersion            string   `plist:"CFBundleVersion,omitempty" json:"CFBundleVersion,omitempty"`
	CFBundleSupportedPlatforms []string `plist:"CFBundleSupportedPlatforms,omitempty" json:"CFBundleSupportedPlatforms,omitempty"`
	DTPlatformName             string   `plist:"DTPlatformName,omitempty" json:"DTPlatformName,omitempty"`
	DTSDKName                  string   `plist:"DTSDKName,omitempty" json:"DTSDKName,omitempty"`
	MinimumOSVersion           string   `plist:"MinimumOSVersion,omitempty" json:"MinimumOSVersion,omitempty"`
	LSMinimumSystemVersion     string   `plist:"LSMinimumSystemVersion,omitempty" json:"LSMinimumSystemVersion,omitempty"`
}

// IsSimulator reports whether the bundle was built for a simulator platform.
func (a *AppInfo) IsSimulator() bool {
	if strings.HasSuffix(strings.ToLower(a.DTPlatformName), "simulator") {
		return true
	}
	return slices.ContainsFunc(a.CFBundleSupportedPlatforms, func(p string) bool {
		return strings.HasSuffix(p, "Simulator")
	})
}

// MinimumVersion is the deployment target of the bundle's platform.
func (a *AppInfo) MinimumVersion() string {
	if a.MinimumOSVersion != "" {
		return a.MinimumOSVersion
	}
	return a.LSMinimumSystemVersion
}

// ParseAppInfo parses the .app/Info.plist
func ParseAppInfo(data []byte) (*AppInfo, error) {
	i := &AppInfo{}
	if err := plist.NewDecoder(bytes.NewReader(data)).Decode(i); err != nil {
		return nil, fmt.Errorf("failed to parse Info.plist: %w", err)
	}
	return i, nil
}

// bundle layouts: iOS style (flat) and macOS style (Contents/MacOS)
var appLayouts = []struct {
	info string
	exe  string
}{
	{info: "Info.plist", exe: ""},
	{info: filepath.Join("Contents", "Info.plist"), exe: filepath.Join("Contents", "MacOS")},
}

// ReadAppInfo reads the Info.plist of the .app bundle at path and returns it
// with the path of the bundle's main executable.
func ReadAppInfo(path string) (*AppInfo, string, error) {
	if filepath.Ext(filepath.Clean(path)) != ".app" {
		return nil, "", fmt.Errorf("%s is not an .app bundle", path)
	}
	for _, layout := range appLayouts {
		infoPath := filepath.Join(path, layout.info)
		dat, err := os.ReadFile(infoPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, "", fmt.Errorf("failed to read %s: %w", infoPath, err)
		}
		info, err := ParseAppInfo(dat)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse %s: %w", infoPath, err)
		}
		if info.CFBundleExecutable == "" {
			return nil, "", fmt.Errorf("failed to find CFBundleExecutable in %s", infoPath)
		}
		return info, filepath.Join(path, layout.exe, info.CFBundleExecutable), nil
	}
	return nil, "", fmt.Errorf("%s has neither an Info.plist nor a Contents/Info.plist", path)
}
