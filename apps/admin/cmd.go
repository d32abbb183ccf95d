package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/maany-shr/eclass/core"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf   *core.Config
	out    io.Writer
	openDB func(ctx context.Context) (*sql.DB, error)
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) over the embedded migrations")
	fmt.Fprintln(cli.out, "  issuetoken -subject SUBJECT [-email EMAIL] [-roles ROLE,...] [-ttl DURATION] - sign an id token; the signing key is prompted next")
	fmt.Fprintln(cli.out, "  sessionstatus -start RFC3339 - print the status of a session starting at the given time")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "issuetoken":
		return cli.issueToken(args[2:])
	case "sessionstatus":
		return cli.sessionStatus(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}
