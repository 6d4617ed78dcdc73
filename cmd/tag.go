package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-archive/internal/tagging"
)

var tagCmd = &cobra.Command{
	Use:   "tag <face-id> <person-name>",
	Short: "Name a single face",
	Long: `Assign a person name to one face, replacing any previous name.

Example:
  photo-archive tag 3c1e4a4e-7f0b-4b8e-9d55-0a7a1c8f2e11 "Jane Doe"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runTag,
}

var tagSimilarCmd = &cobra.Command{
	Use:   "tag-similar <face-id> <person-name>",
	Short: "Name a face and every similar face in the archive",
	Long: `Assign a person name to a reference face and propagate it to every face
the recognition service rates at least --threshold percent similar.

Example:
  photo-archive tag-similar 3c1e4a4e-7f0b-4b8e-9d55-0a7a1c8f2e11 "Jane Doe"
  photo-archive tag-similar --threshold 95 3c1e4a4e-7f0b-4b8e-9d55-0a7a1c8f2e11 "Jane Doe"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runTagSimilar,
}

func init() {
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(tagSimilarCmd)

	tagSimilarCmd.Flags().Float64("threshold", -1, "Minimum similarity 0-100 (default from TAGGING_SIMILARITY_THRESHOLD)")
	tagSimilarCmd.Flags().Bool("json", false, "Output as JSON")
}

// personArg joins the trailing arguments so unquoted names work.
func personArg(args []string) string {
	return strings.Join(args[1:], " ")
}

func runTag(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), durableBackend)
	if err != nil {
		return err
	}
	defer a.Close()

	ok, err := a.reconciler.TagFace(cmd.Context(), args[0], personArg(args))
	if err != nil {
		return fmt.Errorf("failed to tag face: %w", err)
	}
	if !ok {
		return fmt.Errorf("face %s is not in the archive", args[0])
	}
	fmt.Printf("Tagged face %s as %s\n", args[0], personArg(args))
	return nil
}

func runTagSimilar(cmd *cobra.Command, args []string) error {
	threshold := mustGetFloat64(cmd, "threshold")
	jsonOutput := mustGetBool(cmd, "json")

	a, err := newApp(cmd.Context(), durableBackend)
	if err != nil {
		return err
	}
	defer a.Close()

	if threshold < 0 {
		threshold = a.cfg.Tagging.SimilarityThreshold
	}

	result, err := a.reconciler.TagSimilarFaces(cmd.Context(), tagging.TagRequest{
		ReferenceFaceID:     args[0],
		PersonName:          personArg(args),
		SimilarityThreshold: threshold,
	})
	if result == nil {
		return fmt.Errorf("failed to tag similar faces: %w", err)
	}

	if jsonOutput {
		if jerr := printJSON(result); jerr != nil {
			return errors.Join(jerr, err)
		}
	} else {
		fmt.Printf("Tagged %d face(s) as %s (threshold %.1f%%)\n", result.Count(), personArg(args), threshold)
		if len(result.Skipped) > 0 {
			fmt.Printf("  Skipped (not in archive): %d\n", len(result.Skipped))
		}
		for _, id := range result.Failed {
			fmt.Printf("  Failed: %s\n", id)
		}
	}
	if err != nil {
		return fmt.Errorf("propagation incomplete: %w", err)
	}
	return nil
}
