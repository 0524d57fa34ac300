package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tryxpath-cli/cmd"
	"github.com/xkilldash9x/tryxpath-cli/internal/observability"
)

const panicLogFile = "panic.log"

var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		// An interrupt still persists the session, so it is not a failure.
		if errors.Is(err, context.Canceled) {
			osExit(0)
		}
		osExit(1)
	}
}

// handlePanic records the stack trace before exiting.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	trace := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	observability.GetLogger().Error("Unrecoverable panic.", zap.String("panic", fmt.Sprint(r)))
	observability.Sync()
	if err := osWriteFile(panicLogFile, []byte(trace), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "failed to write panic log:", err)
	}
	fmt.Fprintln(os.Stderr, trace)
	osExit(2)
}
