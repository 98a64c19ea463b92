package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skips config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "polaroid-extract %s\n", AppVersion)
			fmt.Fprintf(out, "gocv %s\n", gocv.Version())
			fmt.Fprintf(out, "opencv %s\n", gocv.OpenCVVersion())
		},
	}
}
