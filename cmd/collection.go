package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage the Rekognition face collection",
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the face collection if it does not exist",
	Args:  cobra.NoArgs,
	RunE:  runCollectionCreate,
}

func init() {
	rootCmd.AddCommand(collectionCmd)
	collectionCmd.AddCommand(collectionCreateCmd)
}

func runCollectionCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), anyBackend)
	if err != nil {
		return err
	}
	defer a.Close()

	created, err := a.rekognition.EnsureCollection(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if created {
		fmt.Printf("Created collection %s\n", a.cfg.AWS.CollectionID)
	} else {
		fmt.Printf("Collection %s already exists\n", a.cfg.AWS.CollectionID)
	}
	return nil
}
