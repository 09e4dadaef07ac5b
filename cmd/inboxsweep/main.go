package main

import (
	"context"
	"os"

	"aaronromeo.com/inboxsweep/internal/cli"
)

func main() {
	os.Exit(cli.Run(context.Background(), cli.NewApp(), os.Args, os.Stderr))
}
