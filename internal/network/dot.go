package network

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var classColors = map[Class]string{
	ClassInterneuron: "blue",
	ClassTyped:       "red",
	ClassUntyped:     "green",
}

// WriteDOT writes g in Graphviz DOT for an external layout engine.
func WriteDOT(w io.Writer, name string, g Graph) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %s {\n", quote(name))
	fmt.Fprintln(bw, "  node [shape=point, width=0.1];")
	fmt.Fprintln(bw, "  edge [arrowhead=none];")
	for _, n := range g.Nodes {
		fmt.Fprintf(bw, "  %s [label=%s, color=%s, class=%s, members=%d];\n",
			quote(n.Key), quote(n.Type), classColors[n.Class], quote(string(n.Class)), len(n.Members))
	}
	for _, e := range g.Edges {
		fmt.Fprintf(bw, "  %s -> %s [weight=%s, penwidth=%s];\n",
			quote(e.From), quote(e.To), formatFloat(e.Weight), formatFloat(e.Width()))
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
