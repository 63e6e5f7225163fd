package main

import (
	"context"
	"fmt"
	"os"

	"github.com/edudati/openheal-research/commands"
)

func main() {
	if err := commands.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
