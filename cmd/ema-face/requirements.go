package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-face/core/config"
)

var requirementsCmd = &cobra.Command{
	Use:   "requirements",
	Short: "Print the capability groups a session would negotiate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		streaming, _ := cmd.Flags().GetBool("streaming")

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(config.Requirements(cfg, streaming))
	},
}

func init() {
	rootCmd.AddCommand(requirementsCmd)
	requirementsCmd.Flags().Bool("streaming", true, "whether the client can stream microphone audio")
}
