package main

import (
	"encoding/json"
	"flag"
	"time"

	"github.com/pkg/errors"

	"github.com/maany-shr/eclass/core/session"
)

func (cli *commandLine) sessionStatus(args []string) error {
	cmd := flag.NewFlagSet("sessionstatus", flag.ContinueOnError)
	cmd.SetOutput(cli.out)
	start := cmd.String("start", "", "The session start time, e.g. 2026-10-16T14:00:00Z.")

	if err := cmd.Parse(args); err != nil {
		return errHelp
	}
	if *start == "" {
		cmd.Usage()
		return errHelp
	}

	startTime, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return errors.Wrap(err, "start must be an RFC 3339 date-time")
	}

	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(session.Now(startTime))
}
