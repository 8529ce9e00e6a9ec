package loader

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"

	"github.com/blacktop/execbin/pkg/macho"
)

// A Node is one image in a dependency graph, keyed by Path.
type Node struct {
	// Path is the canonical location the image was loaded from, or the
	// install name when it could not be found.
	Path string `json:"path"`
	// InstallName is the name from the load command that first reached the node.
	InstallName string `json:"install_name,omitempty"`
	// Kind is weak only if every reference to the image is weak.
	Kind    macho.DylibKind `json:"kind,omitempty"`
	Depth   int             `json:"depth"`
	Missing bool            `json:"missing,omitempty"`
	// System marks a missing library expected in the dyld shared cache.
	System bool          `json:"system,omitempty"`
	Tried  []string      `json:"tried,omitempty"`
	Binary *macho.Binary `json:"-"`

	deps []string
}

func (n *Node) String() string {
	switch {
	case n.Depth == 0:
		return n.Path
	case n.System:
		return n.InstallName + " (shared cache)"
	case n.Missing:
		return n.InstallName + " (missing)"
	case n.InstallName != n.Path:
		return n.InstallName + " => " + n.Path
	}
	return n.Path
}

func nodeHash(n *Node) string { return n.Path }

// Graph is the result of a Walk.
type Graph struct {
	g     graph.Graph[string, *Node]
	root  *Node
	nodes map[string]*Node
}

func newGraph(root *Node) *Graph {
	g := &Graph{
		g:     graph.New(nodeHash, graph.Directed()),
		root:  root,
		nodes: make(map[string]*Node),
	}
	g.add(root)
	return g
}

func (g *Graph) add(n *Node) {
	g.g.AddVertex(n) // the memory store only fails on duplicates
	g.nodes[n.Path] = n
}

// link records that from loads to. Repeated load commands keep one edge but
// are listed again in Deps.
func (g *Graph) link(from, to *Node, kind macho.DylibKind) error {
	from.deps = append(from.deps, to.Path)
	if err := g.g.AddEdge(from.Path, to.Path, graph.EdgeAttribute("kind", kind.String())); err != nil {
		if errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to link %s to %s: %w", from.Path, to.Path, err)
	}
	return nil
}

// Root is the path of the walked image.
func (g *Graph) Root() string { return g.root.Path }

// Len is the number of images in the graph, the root included.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node for path.
func (g *Graph) Node(path string) (*Node, bool) {
	n, ok := g.nodes[path]
	return n, ok
}

// Nodes returns every node sorted by depth and then path.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Depth != nodes[j].Depth {
			return nodes[i].Depth < nodes[j].Depth
		}
		return nodes[i].Path < nodes[j].Path
	})
	return nodes
}

// Deps returns the node paths loaded by path in load command order.
func (g *Graph) Deps(path string) []string {
	n, ok := g.nodes[path]
	if !ok {
		return nil
	}
	return append([]string(nil), n.deps...)
}

// Missing returns the libraries that could not be found, excluding the ones
// expected in the shared cache.
func (g *Graph) Missing() []*Node {
	var missing []*Node
	for _, n := range g.Nodes() {
		if n.Missing && !n.System {
			missing = append(missing, n)
		}
	}
	return missing
}

// Why returns the shortest load chain from the root to target. target may be
// a node path, an install name or a leaf name such as libz.1.dylib.
func (g *Graph) Why(target string) ([]string, error) {
	key, ok := g.lookup(target)
	if !ok {
		return nil, fmt.Errorf("%s is not loaded by %s", target, g.root.Path)
	}
	chain, err := graph.ShortestPath(g.g, g.root.Path, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find load chain to %s: %w", target, err)
	}
	return chain, nil
}

func (g *Graph) lookup(target string) (string, bool) {
	if _, ok := g.nodes[target]; ok {
		return target, true
	}
	for _, n := range g.Nodes() {
		if n.InstallName == target {
			return n.Path, true
		}
	}
	for _, n := range g.Nodes() {
		if filepath.Base(n.Path) == target || filepath.Base(n.InstallName) == target {
			return n.Path, true
		}
	}
	return "", false
}

// Tree writes the graph as an indented tree. Images already printed are not
// expanded again.
func (g *Graph) Tree(w io.Writer) error {
	seen := make(map[string]bool)
	var walk func(n *Node, level int) error
	walk = func(n *Node, level int) error {
		indent := strings.Repeat("  ", level)
		if seen[n.Path] {
			if len(n.deps) > 0 {
				_, err := fmt.Fprintf(w, "%s%s ...\n", indent, n)
				return err
			}
			_, err := fmt.Fprintf(w, "%s%s\n", indent, n)
			return err
		}
		seen[n.Path] = true
		if _, err := fmt.Fprintf(w, "%s%s\n", indent, n); err != nil {
			return err
		}
		for _, dep := range n.deps {
			if err := walk(g.nodes[dep], level+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(g.root, 0)
}
