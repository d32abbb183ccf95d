package main

import (
	"flag"
	"fmt"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/auth"
)

var readPasswordFunc = term.ReadPassword // mockable

// issueToken signs an id token the way the identity provider does, for local testing.
func (cli *commandLine) issueToken(args []string) error {
	cmd := flag.NewFlagSet("issuetoken", flag.ContinueOnError)
	cmd.SetOutput(cli.out)
	subject := cmd.String("subject", "", "The user's id at the identity provider.")
	email := cmd.String("email", "", "The user's email.")
	roles := cmd.String("roles", "", "Comma separated roles, e.g. student,coach.")
	session := cmd.String("session", "", "The session id. Defaults to a random one.")
	ttl := cmd.Duration("ttl", time.Hour, "How long the token stays valid.")

	if err := cmd.Parse(args); err != nil {
		return errHelp
	}
	if *subject == "" || *ttl <= 0 {
		cmd.Usage()
		return errHelp
	}

	fmt.Fprint(cli.out, "Enter signing key (empty for the configured one):")
	key, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return err
	}
	if len(key) == 0 {
		key = []byte(cli.conf.SecretKey)
	}

	claims := auth.NewClaims(cli.conf.AppName, core.CleanString(*subject), *ttl)
	claims.Email = core.CleanString(*email, true /* lower */)
	claims.SessionID = *session
	if claims.SessionID == "" {
		claims.SessionID = "sess-" + claims.Subject
	}
	for _, role := range strings.Split(*roles, ",") {
		if role = core.CleanString(role, true /* lower */); role != "" {
			claims.Roles = append(claims.Roles, role)
		}
	}

	token, err := auth.GenerateToken(claims, key)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
