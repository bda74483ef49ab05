// pybundle bundles a Python entry point and the local definitions it
// reaches into one self-contained source file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pybundle/internal/ui/report"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, report.StyleError.Render("error:"), err)
		os.Exit(1)
	}
}
