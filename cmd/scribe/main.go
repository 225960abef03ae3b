package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/medicalscribe/scribe/internal/bus"
	"github.com/medicalscribe/scribe/internal/config"
	"github.com/medicalscribe/scribe/internal/daemon"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Consultation transcription and clinical documentation",
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		toggleCmd(),
		finalizeCmd(),
		clearCmd(),
		statusCmd(),
		versionCmd(),
		stopCmd(),
		patientCmd(),
		scenarioCmd(),
		exportCmd(),
		watchCmd(),
		transcriptCmd(),
		documentCmd(),
		profileCmd(),
		historyCmd(),
		settingsCmd(),
		configureCmd(),
		checkCmd(),
	)
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := daemon.NewWithOptions(daemon.Options{ConfigPath: configPath})
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			go func() {
				<-cmd.Context().Done()
				d.Stop()
			}()
			return d.Run()
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file (default is the user config dir)")
	return cmd
}

// send issues one socket command and prints the reply.
func send(what string, c byte, arg string) error {
	resp, err := bus.Send(c, arg)
	if err != nil {
		if errors.Is(err, bus.ErrNotRunning) {
			return fmt.Errorf("failed to %s: daemon not running (start it with: scribe serve)", what)
		}
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	fmt.Println(resp)
	return nil
}

func socketCmd(use, short, what string, c byte) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(what, c, "")
		},
	}
}

func toggleCmd() *cobra.Command {
	return socketCmd("toggle", "Start or stop recording", "toggle recording", bus.CmdToggle)
}

func finalizeCmd() *cobra.Command {
	return socketCmd("finalize", "Stop recording and generate the clinical documents", "finalize", bus.CmdFinalize)
}

func clearCmd() *cobra.Command {
	return socketCmd("clear", "Discard the current consultation", "clear", bus.CmdClear)
}

func statusCmd() *cobra.Command {
	return socketCmd("status", "Get the session status", "get status", bus.CmdStatus)
}

func versionCmd() *cobra.Command {
	return socketCmd("version", "Get protocol version", "get version", bus.CmdVersion)
}

func stopCmd() *cobra.Command {
	return socketCmd("stop", "Stop the daemon", "stop daemon", bus.CmdQuit)
}

func patientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patient <age> [name...]",
		Short: "Set the patient's age and name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("age must be a number, got %q", args[0])
			}
			return send("set patient", bus.CmdPatient, strings.Join(args, " "))
		},
	}
}

func scenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "scenario <UBS|PS|UTI|Consultório>",
		Short:     "Set the care setting",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"UBS", "PS", "UTI", "Consultório"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return send("set scenario", bus.CmdScenario, args[0])
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "export <document>",
		Short:     "Export one document of the finalized consultation as PDF",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"prontuario", "receituario", "atestado", "exames", "orientacoes"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return send("export", bus.CmdExport, args[0])
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration menu for scribe.
This edits:
- Backend address and timeout
- Transcription and copilot providers
- Provider API keys
- Recording device and block length
- Default scenario, persistence and PDF output
- Notifications`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

// loadConfig falls back to defaults when no config file exists yet.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrConfigNotFound) {
		return config.DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
