package colors

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestInit_ForceOn(t *testing.T) {
	// Save and restore original state
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = true
	forceOn := true
	Init(&forceOn)

	if !Enabled() {
		t.Error("expected colors enabled when Init(true)")
	}
}

func TestInit_ForceOff(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = false
	forceOff := false
	Init(&forceOff)

	if Enabled() {
		t.Error("expected colors disabled when Init(false)")
	}
}

func TestInit_Nil_KeepsExisting(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	for _, noColor := range []bool{false, true} {
		color.NoColor = noColor
		Init(nil)
		if color.NoColor != noColor {
			t.Errorf("Init(nil) changed NoColor from %t", noColor)
		}
	}
}

func TestLinkageColors(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	palette := []struct {
		name string
		fn   func() *color.Color
	}{
		{"Section", Section},
		{"Arch", Arch},
		{"Path", Path},
		{"Unresolved", Unresolved},
		{"Kind", Kind},
		{"Missing", Missing},
		{"Weak", Weak},
		{"Faint", Faint},
	}

	for _, tc := range palette {
		t.Run(tc.name, func(t *testing.T) {
			color.NoColor = false
			if got := tc.fn().Sprint("x"); !strings.Contains(got, "\x1b[") {
				t.Errorf("%s() should produce ANSI codes when enabled, got %q", tc.name, got)
			}
			color.NoColor = true
			if got := tc.fn().Sprint("x"); got != "x" {
				t.Errorf("%s() should be plain when disabled, got %q", tc.name, got)
			}
		})
	}
}
