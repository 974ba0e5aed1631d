package main

// ============================================================================
// fontmake-mp entry point
// 1. Run the CLI and exit with its status
// 2. Top-level panic recovery so a crash still exits 1 with a message
// ============================================================================

import (
	"context"
	"fmt"
	"os"

	"github.com/ChuLiYu/fontmake-mp/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] fontmake-mp crashed: %v\n", r)
			code = 1
		}
	}()
	return cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}
