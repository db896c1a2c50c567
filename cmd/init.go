package cmd

import (
	"errors"
	"fmt"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"testledger/internal/docstore"
	"testledger/internal/model"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and the root catalog page",
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	m, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	docs := m.Docs()
	if _, err := docs.Get(ctx, model.RootPage); err != nil {
		var notFound *docstore.NotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		doc := &docstore.Document{
			Name:    model.RootPage,
			Time:    time.Now().UTC(),
			Author:  currentUser(),
			Content: docstore.Compose("Test Catalogs", ""),
		}
		if _, err := docs.Save(ctx, doc); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", cfg.DatabasePath)
	return nil
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}
