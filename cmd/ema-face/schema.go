package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-face/core/protocol"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of every protocol message",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(protocol.Schemas())
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
