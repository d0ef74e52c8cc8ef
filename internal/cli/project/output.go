package project

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/vertex-deployer/deployer/internal/scaffold"
)

func printResults(w io.Writer, results []scaffold.Result) {
	for _, r := range results {
		switch r.Action {
		case scaffold.Created:
			fmt.Fprintf(w, "%s %s\n", color.GreenString("created"), r.Path)
		default:
			fmt.Fprintf(w, "%s %s (already exists)\n", color.YellowString("skipped"), r.Path)
		}
	}
}
