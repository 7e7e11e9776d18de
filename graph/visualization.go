package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Exporter renders a compiled graph in text diagram formats.
type Exporter[S any] struct {
	r *Runnable[S]
}

// NewExporter creates a new graph exporter for the given runnable
func NewExporter[S any](r *Runnable[S]) *Exporter[S] {
	return &Exporter[S]{r: r}
}

// MermaidOptions defines configuration for Mermaid diagram generation
type MermaidOptions struct {
	// Direction of the flowchart (e.g., "TD", "LR")
	Direction string
}

type route struct {
	label string
	to    string
}

// routes returns the labeled conditional routes out of from, sorted by label.
func (ge *Exporter[S]) routes(from string) []route {
	ce, ok := ge.r.conditional[from]
	if !ok {
		return nil
	}
	var out []route
	for label, to := range ce.pathMap {
		out = append(out, route{label: label, to: to})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].label < out[j].label })
	return out
}

func (ge *Exporter[S]) nodeNames() []string {
	names := make([]string, 0, len(ge.r.nodes))
	for name := range ge.r.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ge *Exporter[S]) conditionalSources() []string {
	froms := make([]string, 0, len(ge.r.conditional))
	for from := range ge.r.conditional {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	return froms
}

// DrawMermaid generates a Mermaid diagram representation of the graph
func (ge *Exporter[S]) DrawMermaid() string {
	return ge.DrawMermaidWithOptions(MermaidOptions{Direction: "TD"})
}

// DrawMermaidWithOptions generates a Mermaid diagram with custom options
func (ge *Exporter[S]) DrawMermaidWithOptions(opts MermaidOptions) string {
	var sb strings.Builder

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}
	fmt.Fprintf(&sb, "flowchart %s\n", direction)

	entry := ge.r.entryPoint
	sb.WriteString("    START([\"START\"])\n")
	sb.WriteString("    style START fill:#90EE90\n")
	fmt.Fprintf(&sb, "    START --> %s\n", entry)

	for _, name := range ge.nodeNames() {
		if name == entry {
			fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", name, name)
		} else {
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", name, name)
		}
	}
	sb.WriteString("    END([\"END\"])\n")
	sb.WriteString("    style END fill:#FFB6C1\n")

	for _, edge := range ge.r.edges {
		fmt.Fprintf(&sb, "    %s --> %s\n", edge.From, edge.To)
	}

	for _, from := range ge.conditionalSources() {
		routes := ge.routes(from)
		if len(routes) == 0 {
			fmt.Fprintf(&sb, "    %s -.-> %s_condition((?))\n", from, from)
			fmt.Fprintf(&sb, "    style %s_condition fill:#FFFFE0,stroke:#333,stroke-dasharray: 5 5\n", from)
			continue
		}
		for _, rt := range routes {
			fmt.Fprintf(&sb, "    %s -.->|%s| %s\n", from, rt.label, rt.to)
		}
	}

	fmt.Fprintf(&sb, "    style %s fill:#87CEEB\n", entry)
	return sb.String()
}

// DrawDOT generates a DOT (Graphviz) representation of the graph
func (ge *Exporter[S]) DrawDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph G {\n")
	sb.WriteString("    rankdir=TD;\n")
	sb.WriteString("    node [shape=box];\n")
	sb.WriteString("    START [label=\"START\", shape=ellipse, style=filled, fillcolor=lightgreen];\n")
	sb.WriteString("    END [label=\"END\", shape=ellipse, style=filled, fillcolor=lightpink];\n")
	fmt.Fprintf(&sb, "    START -> %s;\n", ge.r.entryPoint)
	fmt.Fprintf(&sb, "    %s [style=filled, fillcolor=lightblue];\n", ge.r.entryPoint)

	for _, edge := range ge.r.edges {
		fmt.Fprintf(&sb, "    %s -> %s;\n", edge.From, edge.To)
	}
	for _, from := range ge.conditionalSources() {
		routes := ge.routes(from)
		if len(routes) == 0 {
			fmt.Fprintf(&sb, "    %s -> %s_condition [style=dashed, label=\"?\"];\n", from, from)
			fmt.Fprintf(&sb, "    %s_condition [label=\"?\", shape=diamond, style=filled, fillcolor=lightyellow];\n", from)
			continue
		}
		for _, rt := range routes {
			fmt.Fprintf(&sb, "    %s -> %s [style=dashed, label=\"%s\"];\n", from, rt.to, rt.label)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// DrawASCII generates an ASCII tree representation of the graph
func (ge *Exporter[S]) DrawASCII() string {
	var sb strings.Builder
	visited := make(map[string]bool)

	sb.WriteString("Graph Execution Flow:\n")
	sb.WriteString("├── START\n")
	ge.drawASCIINode(ge.r.entryPoint, "", "│   ", true, visited, &sb)
	return sb.String()
}

func (ge *Exporter[S]) drawASCIINode(nodeName, label, prefix string, isLast bool, visited map[string]bool, sb *strings.Builder) {
	connector := "├──"
	nextPrefix := prefix + "│   "
	if isLast {
		connector = "└──"
		nextPrefix = prefix + "    "
	}
	if label != "" {
		label = "[" + label + "] "
	}

	if visited[nodeName] {
		fmt.Fprintf(sb, "%s%s %s%s (cycle)\n", prefix, connector, label, nodeName)
		return
	}
	visited[nodeName] = true
	fmt.Fprintf(sb, "%s%s %s%s\n", prefix, connector, label, nodeName)

	if nodeName == END {
		delete(visited, END)
		return
	}

	var children []route
	if to, ok := ge.r.next[nodeName]; ok {
		children = append(children, route{to: to})
	}
	if _, ok := ge.r.conditional[nodeName]; ok {
		routes := ge.routes(nodeName)
		if len(routes) == 0 {
			children = append(children, route{label: "?", to: "(conditional)"})
		}
		children = append(children, routes...)
	}

	for i, child := range children {
		last := i == len(children)-1
		if child.to == "(conditional)" {
			c := "├──"
			if last {
				c = "└──"
			}
			fmt.Fprintf(sb, "%s%s (?)\n", nextPrefix, c)
			continue
		}
		ge.drawASCIINode(child.to, child.label, nextPrefix, last, visited, sb)
	}
}
