package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "veracity",
		EnableShellCompletion: true,
		Usage:                 "Investigate biomedical claims against a literature corpus",
		Commands: []*cli.Command{
			NewInvestigateCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
