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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/execbin/internal/colors"
	"github.com/blacktop/execbin/internal/config"
	"github.com/blacktop/execbin/internal/utils"
	"github.com/blacktop/execbin/pkg/loader"
	"github.com/blacktop/execbin/pkg/macho"
	"github.com/caarlos0/ctrlc"
	"github.com/spf13/cobra"
)

var (
	missingColor = colors.Missing().SprintFunc()
	weakColor    = colors.Weak().SprintFunc()
)

type depsNode struct {
	*loader.Node
	Deps []string `json:"deps,omitempty"`
}

func init() {
	rootCmd.AddCommand(depsCmd)

	depsCmd.Flags().StringP("arch", "a", "", "Which architecture to use for fat/universal MachO")
	depsCmd.Flags().IntP("depth", "d", 0, "Maximum load command depth to follow (0 is unlimited)")
	depsCmd.Flags().StringSliceP("fallback", "f", []string{}, "Fallback library search paths")
	depsCmd.Flags().BoolP("missing", "m", false, "Only list missing libraries")
	depsCmd.Flags().BoolP("json", "j", false, "Print as JSON")
	depsCmd.Flags().StringP("sdk-root", "r", "", "Root prepended to absolute library paths (e.g. a simulator runtime)")
	depsCmd.Flags().StringP("why", "w", "", "Print the shortest load chain to a library")
	depsCmd.Flags().BoolP("strict", "s", false, "Fail if a library that is not weak-linked is missing")
	depsCmd.Flags().Int("cache-size", 0, "Number of parsed images to cache")
	bindFlags(depsCmd, "deps")

	depsCmd.MarkZshCompPositionalArgumentFile(1)
}

// depsCmd represents the deps command
var depsCmd = &cobra.Command{
	Use:     "deps <MACHO|APP>",
	Aliases: []string{"d"},
	Short:   "Walk the dylib dependencies of a MachO",
	Example: heredoc.Doc(`
		# Print the dependency tree of an app
		❯ execbin deps /Applications/Foo.app
		# List the libraries that cannot be found
		❯ execbin deps --missing --fallback ~/build/lib ./Foo
		# Explain why a library gets loaded
		❯ execbin deps --why libswiftCore.dylib ./Foo
		# Resolve a simulator app against its runtime root
		❯ execbin deps --sdk-root "$(xcrun --sdk iphonesimulator --show-sdk-path)" Foo.app`),
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}

		in, err := resolveInput(args[0])
		if err != nil {
			return err
		}
		if in.App != nil && in.App.IsSimulator() && conf.Deps.SDKRoot == "" {
			log.Warn("Simulator app: system libraries resolve against the host unless --sdk-root is set")
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := ctrlc.Default.Run(ctx, func() error {
			return runDeps(ctx, os.Stdout, termWidth(), conf, in.Path)
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				cancel()
				log.Warn("Exiting...")
				return nil
			}
			return err
		}

		return nil
	},
}

// runDeps walks path and prints the result in the mode conf selects. A strict
// walk with missing libraries prints first and then returns the *loader.MissingError.
// Tree lines are fitted to width columns (0 means no limit).
func runDeps(ctx context.Context, w io.Writer, width int, conf *config.Config, path string) error {
	walker, err := loader.NewWalker(&loader.Config{
		Arch:          conf.Deps.Arch,
		MaxDepth:      conf.Deps.Depth,
		CacheSize:     conf.Deps.CacheSize,
		FallbackPaths: conf.Deps.Fallback,
		Strict:        conf.Deps.Strict,
		Root:          conf.Deps.SDKRoot,
	})
	if err != nil {
		return err
	}

	log.WithField("path", path).Debug("Walking dependencies")
	g, walkErr := walker.Walk(ctx, path)
	if walkErr != nil && !loader.IsMissing(walkErr) {
		return walkErr
	}

	switch {
	case conf.Deps.Why != "":
		if err := printWhy(w, g, conf.Deps.Why); err != nil {
			return err
		}
	case conf.Deps.Missing:
		printMissing(w, g)
	case conf.Deps.JSON:
		if err := printDepsJSON(w, g); err != nil {
			return err
		}
	default:
		if err := printTree(w, g, width); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"images":  g.Len(),
			"missing": len(g.Missing()),
		}).Info("Walked dependencies")
	}

	return walkErr
}

func printTree(w io.Writer, g *loader.Graph, width int) error {
	var buf bytes.Buffer
	if err := g.Tree(&buf); err != nil {
		return err
	}
	for line := range strings.Lines(buf.String()) {
		if _, err := fmt.Fprintln(w, fitWidth(strings.TrimSuffix(line, "\n"), width)); err != nil {
			return err
		}
	}
	return nil
}

func printWhy(w io.Writer, g *loader.Graph, target string) error {
	chain, err := g.Why(target)
	if err != nil {
		return err
	}
	for i, path := range chain {
		n, _ := g.Node(path)
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", i), pathColor(n))
	}
	return nil
}

func printMissing(w io.Writer, g *loader.Graph) {
	missing := g.Missing()
	if len(missing) == 0 {
		log.Info("No missing libraries")
		return
	}
	var names []string
	weak := make(map[string]bool)
	for _, n := range missing {
		names = append(names, n.InstallName)
		if n.Kind == macho.Weak {
			weak[n.InstallName] = true
		}
	}
	for _, name := range utils.Unique(names) {
		if weak[name] {
			fmt.Fprintf(w, "%s %s\n", name, weakColor("(weak)"))
			continue
		}
		fmt.Fprintln(w, missingColor(name))
	}
	for _, n := range missing {
		for _, tried := range n.Tried {
			utils.Indent(log.WithField("lib", n.InstallName).Debug, 2)(tried)
		}
	}
}

func printDepsJSON(w io.Writer, g *loader.Graph) error {
	nodes := make([]depsNode, 0, g.Len())
	for _, n := range g.Nodes() {
		nodes = append(nodes, depsNode{Node: n, Deps: g.Deps(n.Path)})
	}
	return printJSON(w, &struct {
		Root  string     `json:"root"`
		Nodes []depsNode `json:"nodes"`
	}{
		Root:  g.Root(),
		Nodes: nodes,
	})
}
