package main

import (
	"context"
	"os"

	"github.com/okian/telsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Stderr.WriteString("telsync: " + err.Error() + "\n")
		os.Exit(1)
	}
}
