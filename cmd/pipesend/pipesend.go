// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

// Program pipesend publishes sample quote lines to a named pipe endpoint.
// It is a thin demo driver for the easypipes producer role.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/MicroTrendsLtd/EasyPipes"
	"github.com/MicroTrendsLtd/EasyPipes/pipe"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"
)

var flags struct {
	Pipe         string        `flag:"pipe,default=easypipe,Endpoint name"`
	Interval     time.Duration `flag:"interval,default=500ms,Delay between messages"`
	Count        int           `flag:"count,Messages to send (0 means until interrupted)"`
	Timeout      time.Duration `flag:"timeout,default=5s,Accept timeout"`
	WriteThrough bool          `flag:"write-through,Flush after every write"`
}

func main() {
	root := &command.C{
		Name:     filepath.Base(os.Args[0]),
		Help:     "Publish sample quote lines to a named pipe endpoint.",
		SetFlags: command.Flags(flax.MustBind, &flags),
		Run:      runSend,
		Commands: []*command.C{
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runSend(env *command.Env) error {
	srv := easypipes.NewServer(pipe.Config{
		Name:         flags.Pipe,
		Direction:    pipe.Out,
		Timeout:      flags.Timeout,
		WriteThrough: flags.WriteThrough,
	})
	srv.OnState(func(text string) { log.Print(text) })
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer srv.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tick := time.NewTicker(flags.Interval)
	defer tick.Stop()
	for n := 0; flags.Count == 0 || n < flags.Count; {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
		if srv.Send(quoteLine()) {
			n++
		}
	}
	return nil
}

var symbols = []string{"MSFT", "AAPL", "NVDA", "SPY", "GC", "ES"}

// quoteLine fabricates a plausible tick for the demo stream.
func quoteLine() string {
	sym := symbols[rand.IntN(len(symbols))]
	px := 50 + rand.Float64()*450
	return fmt.Sprintf("%s %.2f %s", sym, px, time.Now().UTC().Format(time.RFC3339Nano))
}
