package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/convomem/convomem/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database schema",
		Long:  "Applies the schema for the configured store. SQLite migrates itself on open; for Postgres this creates the vector extension, tables, and indexes.",
		Run:   runInit,
	}

	RootCmd.AddCommand(cmd)
}

func runInit(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := cmd.Context()

	switch cfg.Store.Driver {
	case "postgres":
		s, err := store.NewPostgresStore(ctx, cfg.Store.URL)
		if err != nil {
			exitErr("open store", err)
		}
		defer s.Close()
		if err := s.ApplySchema(ctx); err != nil {
			exitErr("init schema", err)
		}
	default:
		// Opening the SQLite store runs its migration.
		s := openStore(ctx, cfg)
		s.Close()
	}
	fmt.Println("schema applied")
}
