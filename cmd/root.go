package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photo-archive",
	Short: "A searchable archive for a photographer's negatives",
	Long: `Photo Archive ingests scanned negatives, analyses them with AWS Rekognition
(labels, faces, text and celebrities) and keeps a searchable record of every
photo. Faces can be named once and the name propagated to similar faces
across the whole archive.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
