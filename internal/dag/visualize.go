package dag

import (
	"fmt"
	"strings"
)

// RenderASCII draws the computed waves using portable ASCII only.
func (g *Graph) RenderASCII() string {
	if len(g.waves) == 0 {
		return "(no components)\n"
	}

	var sb strings.Builder
	for i, wave := range g.waves {
		sb.WriteString(renderWaveHeader(wave.Number, wave.Size()))
		for j, id := range wave.Components {
			prefix := "  |-"
			if j == len(wave.Components)-1 {
				prefix = "  +-"
			}
			sb.WriteString(fmt.Sprintf("%s %s%s\n", prefix, id, g.renderDeps(id)))
		}
		if i < len(g.waves)-1 {
			sb.WriteString("  |\n  v\n")
		}
	}
	return sb.String()
}

func renderWaveHeader(waveNum, count int) string {
	plural := "s"
	if count == 1 {
		plural = ""
	}
	return fmt.Sprintf("Wave %d (%d component%s)\n", waveNum, count, plural)
}

func (g *Graph) renderDeps(id string) string {
	node := g.nodes[id]
	if node == nil || len(node.Dependencies) == 0 {
		return ""
	}
	return " <- " + strings.Join(node.Dependencies, ", ")
}
