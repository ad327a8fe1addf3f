package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gitlab.com/dirk.krummacker/customers-service/internal/config"
	"gitlab.com/dirk.krummacker/customers-service/internal/store"
)

// Usage example on the command line:
// > DBHOST=localhost DBUSER=dirk DBPWD=bullo92 go run main.go
// > DBHOST=localhost DBUSER=dirk DBPWD=bullo92 go run main.go --file=../../scripts/testdata.sql
func main() {
	var configFile, sqlFile string
	cmd := &cobra.Command{
		Use:          "migration",
		Short:        "Create the customers table, or execute an SQL file",
		Long:         "Without --file, the built-in schema for the configured database is applied. It can be applied repeatedly.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configFile, sqlFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to the configuration file")
	cmd.Flags().StringVar(&sqlFile, "file", "", "the sql file to execute instead of the built-in schema")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string, sqlFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	if sqlFile == "" {
		if err := s.Migrate(ctx); err != nil {
			return err
		}
		fmt.Printf("Schema applied to %s database\n", cfg.Database.Driver)
		return nil
	}

	readFile, err := os.Open(sqlFile) // nosemgrep
	if err != nil {
		return err
	}
	defer readFile.Close()
	if err := s.ExecScript(ctx, readFile); err != nil {
		return err
	}
	fmt.Printf("Executed %s\n", sqlFile)
	return nil
}
