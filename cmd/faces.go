package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-archive/internal/constants"
)

var untaggedCmd = &cobra.Command{
	Use:   "untagged",
	Short: "List faces that still need a name",
	Args:  cobra.NoArgs,
	RunE:  runUntagged,
}

var peopleCmd = &cobra.Command{
	Use:   "people [query]",
	Short: "List tagged people, optionally filtered by a partial name",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPeople,
}

func init() {
	rootCmd.AddCommand(untaggedCmd)
	rootCmd.AddCommand(peopleCmd)

	untaggedCmd.Flags().Int("limit", constants.DefaultUntaggedLimit, "Maximum number of faces (0 = all)")
	untaggedCmd.Flags().Bool("json", false, "Output as JSON")
	peopleCmd.Flags().Bool("json", false, "Output as JSON")
}

func runUntagged(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")

	a, err := newApp(cmd.Context(), durableBackend)
	if err != nil {
		return err
	}
	defer a.Close()

	faces := a.engine.UntaggedFaces(limit)
	if mustGetBool(cmd, "json") {
		return printJSON(faces)
	}
	if len(faces) == 0 {
		fmt.Println("Every face has a name.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FACE ID\tFILENAME\tCONFIDENCE\tAGE")
	fmt.Fprintln(w, "-------\t--------\t----------\t---")
	for _, ref := range faces {
		age := "-"
		if r := ref.Face.AgeRange; r.High > 0 {
			age = fmt.Sprintf("%d-%d", r.Low, r.High)
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\n", ref.Face.FaceID, ref.Filename, ref.Face.Confidence, age)
	}
	w.Flush()
	return nil
}

func runPeople(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), durableBackend)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		names := a.engine.SuggestPeople(args[0], 0)
		if mustGetBool(cmd, "json") {
			return printJSON(names)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}

	people := a.engine.People()
	if mustGetBool(cmd, "json") {
		return printJSON(people)
	}
	if len(people) == 0 {
		fmt.Println("No one has been tagged yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPHOTOS\tFACES")
	fmt.Fprintln(w, "----\t------\t-----")
	for _, p := range people {
		fmt.Fprintf(w, "%s\t%d\t%d\n", p.Name, p.PhotoCount, p.FaceCount)
	}
	w.Flush()
	return nil
}
