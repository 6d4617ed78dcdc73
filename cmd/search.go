package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-archive/internal/constants"
	"github.com/kozaktomas/photo-archive/internal/database"
	"github.com/kozaktomas/photo-archive/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the archive",
	Long: `Search archived photos. All given criteria must match; within --label and
--person a photo matches if it has any of the values.

Examples:
  photo-archive search --label beach --label ocean
  photo-archive search --person "jane doe" --location malibu
  photo-archive search --text "grand hotel" --after 1979-01-01 --before 1980-01-01`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

var searchFaceCmd = &cobra.Command{
	Use:   "face <image-path>",
	Short: "Find archived faces matching the face in an image",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearchFace,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.AddCommand(searchFaceCmd)

	searchCmd.Flags().StringSlice("label", nil, "Label name (repeatable)")
	searchCmd.Flags().Float64("min-confidence", constants.DefaultLabelConfidence, "Minimum label confidence 0-100")
	searchCmd.Flags().StringSlice("person", nil, "Tagged person name (repeatable)")
	searchCmd.Flags().String("text", "", "Text appearing in the photo")
	searchCmd.Flags().String("location", "", "Location metadata substring")
	searchCmd.Flags().String("after", "", "Uploaded on or after date (YYYY-MM-DD)")
	searchCmd.Flags().String("before", "", "Uploaded before date (YYYY-MM-DD)")
	searchCmd.Flags().Bool("json", false, "Output as JSON")

	searchFaceCmd.Flags().Float64("threshold", constants.DefaultFaceSearchThreshold, "Minimum similarity 0-100")
	searchFaceCmd.Flags().Bool("json", false, "Output as JSON")
}

func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw := mustGetString(cmd, name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: expected YYYY-MM-DD", name, raw)
	}
	return t, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	criteria := search.Criteria{
		Labels:   mustGetStringSlice(cmd, "label"),
		People:   mustGetStringSlice(cmd, "person"),
		Text:     mustGetString(cmd, "text"),
		Location: mustGetString(cmd, "location"),
	}
	if len(criteria.Labels) > 0 {
		criteria.MinLabelConfidence = mustGetFloat64(cmd, "min-confidence")
	}
	var err error
	if criteria.UploadedAfter, err = parseDateFlag(cmd, "after"); err != nil {
		return err
	}
	if criteria.UploadedBefore, err = parseDateFlag(cmd, "before"); err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), durableBackend)
	if err != nil {
		return err
	}
	defer a.Close()

	records := a.engine.Combined(criteria)
	if mustGetBool(cmd, "json") {
		if records == nil {
			records = []database.PhotoRecord{}
		}
		return printJSON(records)
	}
	printRecords(records)
	return nil
}

func printRecords(records []database.PhotoRecord) {
	if len(records) == 0 {
		fmt.Println("No photos found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILENAME\tUPLOADED\tLOCATION\tPEOPLE\tLABELS")
	fmt.Fprintln(w, "--------\t--------\t--------\t------\t------")
	for i := range records {
		rec := &records[i]
		var people []string
		for j := range rec.Faces {
			if rec.Faces[j].Tagged() {
				people = append(people, rec.Faces[j].Name())
			}
		}
		labels := make([]string, 0, min(len(rec.Labels), 3))
		for _, l := range rec.Labels[:min(len(rec.Labels), 3)] {
			labels = append(labels, l.Name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rec.Filename, rec.UploadedAt.Format(time.DateOnly), rec.Location(),
			strings.Join(people, ", "), strings.Join(labels, ", "))
	}
	w.Flush()
	fmt.Printf("\n%d photo(s)\n", len(records))
}

func runSearchFace(cmd *cobra.Command, args []string) error {
	threshold := mustGetFloat64(cmd, "threshold")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	a, err := newApp(cmd.Context(), durableBackend)
	if err != nil {
		return err
	}
	defer a.Close()

	hits, err := a.engine.ByFaceImage(cmd.Context(), data, threshold)
	if err != nil {
		if errors.Is(err, database.ErrValidation) {
			return err
		}
		return fmt.Errorf("face search failed: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return printJSON(hits)
	}
	if len(hits) == 0 {
		fmt.Println("No matching faces found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILENAME\tFACE ID\tPERSON\tSIMILARITY")
	fmt.Fprintln(w, "--------\t-------\t------\t----------")
	for _, h := range hits {
		person := h.PersonName
		if person == "" {
			person = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f%%\n", h.Filename, h.FaceID, person, h.Similarity)
	}
	w.Flush()
	return nil
}
