package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/auth"
	"github.com/maany-shr/eclass/core/session"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	out := new(bytes.Buffer)
	return &commandLine{
		conf: core.NewTestConfig(),
		out:  out,
		openDB: func(context.Context) (*sql.DB, error) {
			return nil, nil
		},
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runTests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_run(t *testing.T) {
	cli, _ := setup(t)
	runTests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(_ context.Context, _ *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runTests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_sessions", "sql"}},
	})

	t.Run("database unavailable", func(t *testing.T) {
		cli, _ := setup(t)
		cli.openDB = func(context.Context) (*sql.DB, error) {
			return nil, fmt.Errorf("DB ping timeout")
		}
		assert.EqualError(t, cli.run([]string{"admin", "migrate", "up"}), "DB ping timeout")
	})
}

func Test_commandLine_issueToken(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		key     string
		wantErr error
		check   func(t *testing.T, claims *auth.Claims)
	}{
		{name: "no subject", args: []string{"issuetoken"}, wantErr: errHelp},
		{name: "negative ttl", args: []string{"issuetoken", "-subject", "u1", "-ttl", "-1h"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"issuetoken", "-lol"}, wantErr: errHelp},
		{
			name: "configured key",
			args: []string{"issuetoken", "-subject", "u1", "-email", "Awe@Test.cd", "-roles", "Student, coach,"},
			check: func(t *testing.T, claims *auth.Claims) {
				assert.Equal(t, "u1", claims.Subject)
				assert.Equal(t, "awe@test.cd", claims.Email)
				assert.Equal(t, "sess-u1", claims.SessionID)
				assert.Equal(t, []string{"student", "coach"}, claims.Roles)
				assert.InDelta(t, time.Hour.Seconds(), claims.ExpiresIn().Seconds(), 2)
			},
		},
		{
			name: "prompted key",
			args: []string{"issuetoken", "-subject", "u2", "-session", "s42", "-ttl", "10m"},
			key:  "other-secret",
			check: func(t *testing.T, claims *auth.Claims) {
				assert.Equal(t, "s42", claims.SessionID)
				assert.Empty(t, claims.Roles)
				assert.InDelta(t, (10 * time.Minute).Seconds(), claims.ExpiresIn().Seconds(), 2)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, out := setup(t)
			readPasswordFunc = func(int) ([]byte, error) {
				return []byte(tt.key), nil
			}

			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			key := tt.key
			if key == "" {
				key = cli.conf.SecretKey
			}
			claims, err := auth.ParseToken(lines[len(lines)-1], []byte(key))
			require.NoError(t, err)
			tt.check(t, claims)
		})
	}
}

func Test_commandLine_sessionStatus(t *testing.T) {
	cli, _ := setup(t)
	runTests(t, cli, []cliTest{
		{name: "no start", args: []string{"sessionstatus"}, wantErr: errHelp},
		{name: "bad start", args: []string{"sessionstatus", "-start", "tomorrow"}, wantErrStr: `start must be an RFC 3339 date-time: parsing time "tomorrow" as "2006-01-02T15:04:05Z07:00": cannot parse "tomorrow" as "2006"`},
	})

	tests := []struct {
		name  string
		start time.Time
		want  session.Result
	}{
		{name: "started", start: time.Now().Add(-time.Hour), want: session.Result{Status: session.StatusUpcomingLocked}},
		{name: "editable", start: time.Now().Add(72*time.Hour + 30*time.Minute), want: session.Result{Status: session.StatusUpcomingEditable, HoursLeftToEdit: intPtr(48)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, out := setup(t)
			require.NoError(t, cli.run([]string{"admin", "sessionstatus", "-start", tt.start.Format(time.RFC3339)}))

			var got session.Result
			require.NoError(t, json.Unmarshal(out.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func intPtr(i int) *int { return &i }
