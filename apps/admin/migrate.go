package main

import (
	"context"

	"github.com/maany-shr/eclass/storage/database"
)

var gooseRunFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	ctx := context.Background()
	db, err := cli.openDB(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	return gooseRunFunc(ctx, db, args[0], args[1:]...)
}
