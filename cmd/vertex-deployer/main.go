// vertex-deployer - Compile, upload, run and schedule Vertex AI Pipelines
// Source: https://github.com/vertex-deployer/deployer

package main

import (
	"context"
	"os"

	"github.com/vertex-deployer/deployer/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
