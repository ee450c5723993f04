// ema-face is a terminal face for the assistant. It keeps a session with the
// assistant server, shows the dialog and sends typed commands. Microphone and
// speaker support depends on the capture device and engine flags.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional, real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
