package main

import (
	"context"
	"os"

	"github.com/jhoicas/inventario-conteo/internal/interfaces/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
