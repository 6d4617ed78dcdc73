package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var photoCmd = &cobra.Command{
	Use:   "photo",
	Short: "Archived photo operations",
	Long:  `Commands for inspecting and removing individual archive records.`,
}

var photoShowCmd = &cobra.Command{
	Use:   "show <filename>",
	Short: "Display the archive record of a photo",
	Args:  cobra.ExactArgs(1),
	RunE:  runPhotoShow,
}

var photoDeleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Remove a photo's archive record",
	Long: `Remove a photo's archive record. The original in the archive bucket and
the faces indexed in the collection are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runPhotoDelete,
}

func init() {
	rootCmd.AddCommand(photoCmd)
	photoCmd.AddCommand(photoShowCmd)
	photoCmd.AddCommand(photoDeleteCmd)

	photoShowCmd.Flags().Bool("json", false, "Output as JSON")
}

func runPhotoShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), durableBackend)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.store.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get photo: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return printJSON(rec)
	}

	fmt.Printf("Filename: %s\n", rec.Filename)
	fmt.Printf("Stored:   %s\n", rec.StorageLocation)
	fmt.Printf("Uploaded: %s\n", rec.UploadedAt.Format("2006-01-02 15:04:05"))
	for k, v := range rec.Metadata {
		fmt.Printf("  %s: %s\n", k, v)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if len(rec.Labels) > 0 {
		fmt.Fprintln(w, "\nLABEL\tCONFIDENCE")
		for _, l := range rec.Labels {
			fmt.Fprintf(w, "%s\t%.1f\n", l.Name, l.Confidence)
		}
	}
	if len(rec.Faces) > 0 {
		fmt.Fprintln(w, "\nFACE ID\tPERSON\tCONFIDENCE")
		for i := range rec.Faces {
			name := rec.Faces[i].Name()
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%.1f\n", rec.Faces[i].FaceID, name, rec.Faces[i].Confidence)
		}
	}
	if len(rec.Celebrities) > 0 {
		fmt.Fprintln(w, "\nCELEBRITY\tCONFIDENCE")
		for _, c := range rec.Celebrities {
			fmt.Fprintf(w, "%s\t%.1f\n", c.Name, c.Confidence)
		}
	}
	w.Flush()

	if len(rec.TextLines) > 0 {
		fmt.Println("\nText:")
		for _, t := range rec.TextLines {
			fmt.Printf("  %s\n", t.Text)
		}
	}
	return nil
}

func runPhotoDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), durableBackend)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	fmt.Printf("Deleted record %s\n", args[0])
	return nil
}
