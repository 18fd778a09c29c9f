package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/curate/pkg/convert"
	"github.com/jingkaihe/curate/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  `Print the version information of curate, including the converter version, in JSON format.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		info, err := version.Get(convert.Version).JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), info)
		return nil
	},
}
