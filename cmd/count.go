package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the number of faces in the watchlist",
	Long:  `Displays the total number of stored faces, or the faces of one person with --person.`,
	Args:  cobra.NoArgs,
	RunE:  runCount,
}

func init() {
	rootCmd.AddCommand(countCmd)
	countCmd.Flags().String("person", "", "Only count the faces of this person ID")
}

func runCount(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if personID := mustGetString(cmd, "person"); personID != "" {
		embs, err := a.Store.GetByPerson(ctx, personID)
		if err != nil {
			return fmt.Errorf("failed to read person: %w", err)
		}
		fmt.Printf("Person: %s\n", personID)
		fmt.Printf("Faces:  %d\n", len(embs))
		return nil
	}

	total, err := a.Store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count watchlist: %w", err)
	}
	fmt.Printf("Backend: %s\n", a.Store.Backend())
	fmt.Printf("Faces:   %d\n", total)
	return nil
}
