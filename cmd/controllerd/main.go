package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/funkygao/log4go"
)

func init() {
	log.AddFilter("stdout", log.INFO, log.NewConsoleLogWriter())
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-v" || arg == "-version" {
			fmt.Fprintln(os.Stderr, "controllerd 0.1.0")
			return
		}
	}

	var d daemon
	d.init()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := d.run(ctx); err != nil {
		log.Error("controllerd: %s", err)
		log.Close()
		os.Exit(1)
	}

	log.Close()
}
