// Command analyze scores a single practice recording and prints the result
// as JSON on stdout.
//
//	analyze <video> <scenario> <duration>
//
// <video> is a file path or a base64 payload (optionally a data:video URL).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
