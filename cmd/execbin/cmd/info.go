/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/execbin/internal/colors"
	"github.com/blacktop/execbin/internal/config"
	"github.com/blacktop/execbin/pkg/macho"
	"github.com/blacktop/execbin/pkg/plist"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	sectionColor    = colors.Section().SprintFunc()
	archColor       = colors.Arch().SprintFunc()
	pathColor       = colors.Path().SprintFunc()
	unresolvedColor = colors.Unresolved().SprintFunc()
	kindColor       = colors.Kind().SprintfFunc()
	faintColor      = colors.Faint().SprintFunc()
)

type infoResult struct {
	in  *input
	bin *macho.Binary
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().StringP("arch", "a", "", "Which architecture to use for fat/universal MachO")
	infoCmd.Flags().BoolP("json", "j", false, "Print as JSON")
	infoCmd.Flags().BoolP("resolved", "r", false, "Only print the absolute rpaths")
	bindFlags(infoCmd, "info")

	infoCmd.MarkZshCompPositionalArgumentFile(1)
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:     "info <MACHO|APP>...",
	Aliases: []string{"i"},
	Short:   "Show the architecture, rpaths and linked dylibs of MachOs",
	Example: heredoc.Doc(`
		# Describe a binary
		❯ execbin info /usr/bin/ssh
		# Pick a slice of a universal binary
		❯ execbin info --arch x86_64 /Applications/Foo.app
		# Only print the rpaths with @executable_path/@loader_path expanded
		❯ execbin info -r Foo.app/Contents/MacOS/Foo
		# Dump several binaries as JSON
		❯ execbin info --json ./a.out ./b.out`),
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		return runInfo(os.Stdout, conf, args)
	},
}

// runInfo parses every input concurrently and prints them in argument order.
func runInfo(w io.Writer, conf *config.Config, args []string) error {
	results := make([]infoResult, len(args))

	var eg errgroup.Group
	for i, arg := range args {
		eg.Go(func() error {
			in, err := resolveInput(arg)
			if err != nil {
				return err
			}
			bin, err := macho.Open(in.Path, macho.WithArch(conf.Info.Arch))
			if err != nil {
				return err
			}
			results[i] = infoResult{in: in, bin: bin}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if conf.Info.JSON {
		return printInfoJSON(w, results, conf.Info.Resolved)
	}

	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if conf.Info.Resolved {
			for _, rpath := range r.bin.AbsoluteRpaths() {
				fmt.Fprintln(w, rpath)
			}
			continue
		}
		printInfo(w, r)
	}

	return nil
}

type infoJSON struct {
	MachO *macho.Binary  `json:"macho"`
	App   *plist.AppInfo `json:"app,omitempty"`
}

func printInfoJSON(w io.Writer, results []infoResult, resolved bool) error {
	var out any
	if resolved {
		rpaths := make(map[string][]string, len(results))
		for _, r := range results {
			rpaths[r.bin.Path()] = r.bin.AbsoluteRpaths()
		}
		out = rpaths
	} else if len(results) == 1 {
		out = infoJSON{MachO: results[0].bin, App: results[0].in.App}
	} else {
		infos := make([]infoJSON, 0, len(results))
		for _, r := range results {
			infos = append(infos, infoJSON{MachO: r.bin, App: r.in.App})
		}
		out = infos
	}

	return printJSON(w, out)
}

func printInfo(w io.Writer, r infoResult) {
	b := r.bin

	fmt.Fprintf(w, "%s\n", pathColor(b.Path()))
	fmt.Fprintf(w, "  %s %s\n", faintColor("Magic:"), b.Magic())
	fmt.Fprintf(w, "  %s  %s\n", faintColor("Type:"), b.Type())
	fmt.Fprintf(w, "  %s  %s (%s)", faintColor("Arch:"), archColor(b.Arch()), b.CPUSubtype().String(b.CPUType()))
	if b.IsFat() {
		fmt.Fprint(w, faintColor(" [universal]"))
	}
	fmt.Fprintln(w)
	if flags := b.Flags().Flags(); len(flags) > 0 {
		fmt.Fprintf(w, "  %s %s\n", faintColor("Flags:"), strings.Join(flags, ", "))
	}
	if id := b.UUID(); id != uuid.Nil {
		fmt.Fprintf(w, "  %s  %s\n", faintColor("UUID:"), strings.ToUpper(id.String()))
	}
	fmt.Fprintf(w, "  %s  %s\n", faintColor("Size:"), humanize.Bytes(uint64(r.in.Size)))

	if app := r.in.App; app != nil {
		fmt.Fprintf(w, "\n%s\n", sectionColor("Bundle"))
		fmt.Fprintf(w, "  %s %s\n", faintColor("Identifier:"), app.CFBundleIdentifier)
		if app.CFBundleShortVersionString != "" {
			fmt.Fprintf(w, "  %s    %s (%s)\n", faintColor("Version:"), app.CFBundleShortVersionString, app.CFBundleVersion)
		}
		if v := app.MinimumVersion(); v != "" {
			fmt.Fprintf(w, "  %s    %s\n", faintColor("Minimum:"), v)
		}
		if app.IsSimulator() {
			fmt.Fprintf(w, "  %s   %s\n", faintColor("Platform:"), "simulator")
		}
	}

	if rpaths := b.Rpaths(); len(rpaths) > 0 {
		fmt.Fprintf(w, "\n%s\n", sectionColor("Rpaths"))
		resolved := b.AbsoluteRpaths()
		for i, rpath := range rpaths {
			if rpath == resolved[i] {
				fmt.Fprintf(w, "  %s\n", rpath)
				continue
			}
			fmt.Fprintf(w, "  %s => %s\n", unresolvedColor(rpath), resolved[i])
		}
	}

	if dylibs := b.Dylibs(); len(dylibs) > 0 {
		fmt.Fprintf(w, "\n%s\n", sectionColor("Dylibs"))
		for _, d := range dylibs {
			fmt.Fprintf(w, "  %-10s %s %s\n",
				kindColor("(%s)", d.Kind),
				d.Path,
				faintColor(fmt.Sprintf("(%s)", d.CurrentVersion)),
			)
		}
	}

	log.WithFields(log.Fields{
		"rpaths": len(b.Rpaths()),
		"dylibs": len(b.Dylibs()),
	}).Debug("Parsed MachO")
}
