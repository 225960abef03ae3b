package main

import (
	"fmt"

	"github.com/medicalscribe/scribe/internal/bus"
	"github.com/medicalscribe/scribe/internal/config"
	"github.com/medicalscribe/scribe/internal/tui"
)

func runConfigure() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration menu error: %w", err)
	}
	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println(tui.StyleSuccess.Render("Configuration saved successfully!"))
	fmt.Println()
	showNextSteps()
	return nil
}

func showNextSteps() {
	fmt.Println("Next Steps:")
	if _, err := bus.Send(bus.CmdVersion, ""); err == nil {
		fmt.Println("1. The running daemon reloads the file; device and storage changes need: scribe stop && scribe serve")
	} else {
		fmt.Println("1. Start the daemon: scribe serve")
	}
	fmt.Println("2. Fill in your profile: scribe profile edit")
	fmt.Println("3. Start a consultation: scribe toggle, then follow it with: scribe watch")
	fmt.Println()

	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
}
