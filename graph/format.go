package graph

import (
	"bytes"
	"fmt"
	"strings"
)

const separatorWidth = 60 // Width of separator lines in text output

// ToDOT renders the references reachable from p in Graphviz DOT format.
// Edges point from child to parent and are labelled with the five
// priorities; abstract projects are drawn dashed.
func ToDOT(l Lookup, p *Project) string {
	var buf bytes.Buffer

	buf.WriteString("digraph inheritance {\n")
	buf.WriteString("  rankdir=BT;\n")
	buf.WriteString("  node [shape=box];\n\n")

	nodes := append([]string{p.Name()}, Ancestors(l, p)...)
	for _, name := range nodes {
		node, ok := l.Project(name)
		if !ok {
			continue
		}
		attrs := fmt.Sprintf("label=%q", name)
		if name == p.Name() {
			attrs += ", style=bold"
		}
		if node.Abstract() {
			attrs += ", style=dashed"
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", name, attrs)
	}
	buf.WriteString("\n")

	for _, name := range nodes {
		node, ok := l.Project(name)
		if !ok {
			continue
		}
		for _, ref := range node.References() {
			pr := ref.Priorities
			label := fmt.Sprintf("%d/%d/%d/%d/%d", pr.Parameter, pr.BuildWrapper, pr.Builder, pr.Publisher, pr.Misc)
			style := ""
			if _, ok := l.Project(ref.Target); !ok {
				style = ", color=red, style=dotted"
			}
			fmt.Fprintf(&buf, "  %q -> %q [label=%q%s];\n", name, ref.Target, label, style)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// ScopeText renders a scope as numbered lines in resolution order.
func ScopeText(scope []*Project) string {
	var sb strings.Builder
	sb.WriteString("Resolution scope\n")
	sb.WriteString(strings.Repeat("=", separatorWidth))
	sb.WriteString("\n")
	for i, p := range scope {
		marker := ""
		if p.Abstract() {
			marker = " (abstract)"
		}
		fmt.Fprintf(&sb, "%3d. %s%s\n", i+1, p.Name(), marker)
	}
	return sb.String()
}
