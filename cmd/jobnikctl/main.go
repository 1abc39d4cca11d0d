// Command jobnikctl drives a jobnik database from the shell: producers
// create jobs, stages and tasks, consumers dequeue and report, and
// operators pause, abort, purge and run workers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MapColonies/jobnik/pkg/core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobnikctl: %v\n", err)
		var engineErr *core.Error
		if errors.As(err, &engineErr) {
			fmt.Fprintf(os.Stderr, "code: %s\n", engineErr.Code)
		}
		os.Exit(1)
	}
}
