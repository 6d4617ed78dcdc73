package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-archive/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <folder-path> [folder-path...]",
	Short: "Analyse and archive scanned negatives",
	Long: `Ingest photos from one or more folders. Every photo is uploaded to the
archive bucket, analysed with Rekognition (labels, faces, text, celebrities)
and recorded in the archive. Re-ingesting a filename replaces its record and
drops its face tags.

By default, only files in the specified folders are ingested (non-recursive).
Use -r to search recursively in subdirectories.

An optional CSV file adds metadata per photo. It needs a "filename" column;
every other non-empty column is stored as a metadata field ("location" is
searchable).

Example:
  photo-archive ingest /scans/roll-01
  photo-archive ingest -r /scans --metadata /scans/index.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolP("recursive", "r", false, "Search for photos recursively in subdirectories")
	ingestCmd.Flags().String("metadata", "", "CSV file with per-photo metadata")
	ingestCmd.Flags().Bool("json", false, "Output the summary as JSON")
}

func runIngest(cmd *cobra.Command, args []string) error {
	recursive := mustGetBool(cmd, "recursive")
	metadataPath := mustGetString(cmd, "metadata")
	jsonOutput := mustGetBool(cmd, "json")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, anyBackend)
	if err != nil {
		return err
	}
	defer a.Close()

	paths, err := ingest.CollectFiles(args, recursive, &a.cfg.Ingest)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No image files found in the specified folders.")
		return nil
	}

	var metadata map[string]map[string]string
	if metadataPath != "" {
		f, err := os.Open(metadataPath)
		if err != nil {
			return fmt.Errorf("failed to open metadata file: %w", err)
		}
		metadata, err = ingest.ReadMetadata(f)
		f.Close()
		if err != nil {
			return err
		}
		fmt.Printf("Loaded metadata for %d photo(s)\n", len(metadata))
	}

	fmt.Printf("Found %d image(s) to ingest from %d folder(s)\n\n", len(paths), len(args))

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Ingesting"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	summary := a.pipeline.ProcessFiles(ctx, paths, metadata, func(ingest.Progress) {
		_ = bar.Add(1)
	})
	fmt.Println()

	if jsonOutput {
		return printJSON(summary)
	}

	for _, fe := range summary.Errors {
		fmt.Printf("Failed: %s: %s\n", fe.Path, fe.Error)
	}
	fmt.Printf("\nIngested %d of %d photo(s) in %s\n", summary.Processed, summary.Total, summary.Duration.Round(time.Millisecond))
	fmt.Printf("  Faces:  %d\n", summary.Faces)
	fmt.Printf("  Labels: %d\n", summary.Labels)

	if summary.Processed == 0 {
		return errors.New("no photos were ingested successfully")
	}
	return nil
}
