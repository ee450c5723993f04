package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-face/core/audiooutput"
	"github.com/koscakluka/ema-face/core/config"
)

const defaultServerAddress = "ws://localhost:8086/api/face_web/ws"

var rootCmd = &cobra.Command{
	Use:           "ema-face",
	Short:         "Terminal face for the assistant",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("server", defaultServerAddress, "websocket address of the assistant")
	rootCmd.PersistentFlags().String("config", "", "YAML config file, overlaid on defaults")
	rootCmd.PersistentFlags().Bool("remote-config", false, "fetch the config from the assistant server")
}

// loadConfig resolves the config from the file flag, the server or the
// defaults, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFile(path)
	}

	if remote, _ := cmd.Flags().GetBool("remote-config"); remote {
		server, _ := cmd.Flags().GetString("server")
		base, err := audiooutput.HTTPBase(server)
		if err != nil {
			return config.Config{}, err
		}
		provider, err := config.NewHTTPProvider(base.String())
		if err != nil {
			return config.Config{}, err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		cfg, err := provider.Load(ctx)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config from %s: %w", base, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}
