package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pgmigrate/internal/cli"
)

var version = "dev"

const usage = `Usage: pgmigrate <command> [flags]

Commands:
  run       apply pending migrations (-watch keeps applying new ones)
  revert    roll back the most recently applied migration
  redo      revert the latest migration and apply it again
  status    list applied and pending migrations
  setup     create the migrations directory and tracking table
  new       create a new migration directory
  embed     generate Go source embedding every up.sql
  init      write an annotated pgmigrate.toml
  version   print the version

Run "pgmigrate <command> -h" for the flags of a command.
`

func main() {
	log.SetFlags(0)
	log.SetPrefix("pgmigrate: ")

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "run":
		err = cli.Run(ctx, args)
	case "revert":
		err = cli.Revert(ctx, args)
	case "redo":
		err = cli.Redo(ctx, args)
	case "status":
		err = cli.Status(ctx, args)
	case "setup":
		err = cli.Setup(ctx, args)
	case "new":
		err = cli.New(args)
	case "embed":
		err = cli.Embed(args)
	case "init":
		err = cli.Init(args)
	case "version", "-version", "--version":
		fmt.Println(version)
		return
	case "help", "-h", "-help", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		stop()
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional: stop() already ran
	}
}
