package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	face "github.com/koscakluka/ema-face/core"
	"github.com/koscakluka/ema-face/core/history"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the assistant and open the dialog view",
	Args:  cobra.NoArgs,
	RunE:  runFace,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("event-log", false, "mirror every session event to the debug log")
	addDeviceFlags(runCmd)

	rootCmd.RunE = runCmd.RunE
	addDeviceFlags(rootCmd)
	rootCmd.Flags().Bool("event-log", false, "mirror every session event to the debug log")
}

func runFace(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	audioDevices, err := openDevices(cmd)
	if err != nil {
		return err
	}
	defer audioDevices.Close()

	var program *tea.Program
	send := func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	}

	server, _ := cmd.Flags().GetString("server")
	opts := append([]face.SessionOption{
		face.WithServerAddress(server),
		face.WithConfig(cfg),
		face.WithHistoryCallback(func(entry history.Entry) { send(historyMsg(entry)) }),
		face.WithDisconnectedCallback(func(err error) { send(disconnectedMsg{err: err}) }),
	}, audioDevices.options...)
	if eventLog, _ := cmd.Flags().GetBool("event-log"); eventLog {
		opts = append(opts, face.WithEventLog())
	}

	session, err := face.NewSession(opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	program = tea.NewProgram(newModel(session, cfg), tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan error, 1)
	go func() {
		err := session.Run(ctx)
		program.Quit()
		done <- err
	}()

	_, uiErr := program.Run()
	cancel()
	sessionErr := <-done
	if errors.Is(uiErr, tea.ErrProgramKilled) {
		uiErr = nil
	}
	return errors.Join(uiErr, sessionErr)
}
