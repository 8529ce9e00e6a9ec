// Package colors provides centralized color output with TTY-aware defaults.
//
// Colors are automatically disabled when stdout is not a terminal (piped or
// redirected to a file). This behavior is provided by the underlying fatih/color
// library and respected by default. Use Init() to override based on CLI flags.
package colors

import "github.com/fatih/color"

// Init allows overriding the auto-detected color setting.
//
//   - forceColor == nil: keep auto-detected value (recommended default)
//   - forceColor == true: force colors on (e.g., --color flag)
//   - forceColor == false: force colors off
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

// Enabled returns true if colors are currently enabled.
func Enabled() bool {
	return !color.NoColor
}

func Faint() *color.Color { return color.New(color.Faint) }

func Green() *color.Color  { return color.New(color.FgGreen) }
func Yellow() *color.Color { return color.New(color.FgYellow) }

func BoldRed() *color.Color    { return color.New(color.Bold, color.FgRed) }
func BoldHiBlue() *color.Color { return color.New(color.Bold, color.FgHiBlue) }
func BoldHiCyan() *color.Color { return color.New(color.Bold, color.FgHiCyan) }

func FaintCyan() *color.Color    { return color.New(color.Faint, color.FgCyan) }
func FaintMagenta() *color.Color { return color.New(color.Faint, color.FgMagenta) }

// -----------------------------------------------------------------------------
// Linkage output
// -----------------------------------------------------------------------------

// Section colors a heading such as "Rpaths" or "Dylibs".
func Section() *color.Color { return BoldHiBlue() }

// Arch colors architecture names.
func Arch() *color.Color { return BoldHiCyan() }

// Path colors resolved filesystem locations.
func Path() *color.Color { return Green() }

// Unresolved colors install names and rpaths as written in the binary.
func Unresolved() *color.Color { return FaintCyan() }

// Kind colors dylib load command kinds.
func Kind() *color.Color { return FaintMagenta() }

// Missing colors libraries that could not be found.
func Missing() *color.Color { return BoldRed() }

// Weak colors weak-linked libraries.
func Weak() *color.Color { return Yellow() }
