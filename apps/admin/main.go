package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/maany-shr/eclass/core"
	logsvc "github.com/maany-shr/eclass/services/logger"
	"github.com/maany-shr/eclass/storage/database"
)

func main() {
	logger := logsvc.New("ADMIN")
	conf := core.NewConfig()

	cli := commandLine{
		conf: conf,
		out:  os.Stdout,
		openDB: func(ctx context.Context) (*sql.DB, error) {
			if err := database.CreateIfNotExist(ctx, conf); err != nil {
				return nil, err
			}
			db, err := database.Open(ctx, conf)
			if err != nil {
				return nil, err
			}
			return db.DB, nil
		},
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
