// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

// Program piperecv subscribes to a named pipe endpoint and prints each
// message to the console until interrupted. It is a thin demo driver for
// the easypipes consumer role.
package main

import (
	"context"
	"log"
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
	Pipe    string        `flag:"pipe,default=easypipe,Endpoint name"`
	Timeout time.Duration `flag:"timeout,default=5s,Connect timeout"`
	Quiet   bool          `flag:"quiet,Suppress state diagnostics"`
}

func main() {
	root := &command.C{
		Name:     filepath.Base(os.Args[0]),
		Help:     "Print messages arriving on a named pipe endpoint.",
		SetFlags: command.Flags(flax.MustBind, &flags),
		Run:      runRecv,
		Commands: []*command.C{
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runRecv(env *command.Env) error {
	cli := easypipes.NewClient(pipe.Config{
		Name:      flags.Pipe,
		Direction: pipe.In,
		Timeout:   flags.Timeout,
	})
	if !flags.Quiet {
		cli.OnState(func(text string) { log.Print(text) })
	}
	cli.OnMessage(func(m easypipes.Message) {
		log.Printf("%s: %s", m.Source, m.Text)
	})
	cli.Start()
	defer cli.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-ctx.Done()
	return nil
}
