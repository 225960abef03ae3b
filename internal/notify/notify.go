package notify

import (
	"fmt"
	"log"
	"os/exec"
)

const appName = "Medical Scribe"

type Notifier interface {
	RecordingStarted()
	RecordingEnded()
	Finalized(documents int)
	Notify(title, message string)
	Error(msg string)
}

// New returns the notifier named by kind ("desktop", "log" or "none").
// A disabled configuration always yields Nop.
func New(enabled bool, kind string) Notifier {
	if !enabled {
		return Nop{}
	}
	switch kind {
	case "desktop":
		return Desktop{}
	case "log":
		return Log{}
	}
	return Nop{}
}

type Desktop struct{}

func (d Desktop) RecordingStarted() { d.Notify(appName, "Recording started") }
func (d Desktop) RecordingEnded()   { d.Notify(appName, "Recording stopped") }

func (d Desktop) Finalized(documents int) {
	d.Notify(appName, finalizedMessage(documents))
}

func (Desktop) Notify(title, message string) {
	cmd := exec.Command("notify-send", "-a", appName, title, message)
	if err := cmd.Run(); err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}

func (Desktop) Error(msg string) {
	cmd := exec.Command("notify-send", "-a", appName, "-u", "critical", appName+" Error", msg)
	if err := cmd.Run(); err != nil {
		log.Printf("Failed to send error notification: %v", err)
	}
}

// Log writes notifications to the standard logger.
type Log struct{}

func (l Log) RecordingStarted() { l.Notify(appName, "Recording Started") }
func (l Log) RecordingEnded()   { l.Notify(appName, "Recording Ended") }

func (l Log) Finalized(documents int) {
	l.Notify(appName, finalizedMessage(documents))
}

func (Log) Notify(title, message string) {
	log.Printf("%s: %s", title, message)
}

func (Log) Error(msg string) {
	log.Printf("%s Error: %s", appName, msg)
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) RecordingStarted()            {}
func (Nop) RecordingEnded()              {}
func (Nop) Finalized(int)                {}
func (Nop) Notify(title, message string) {}
func (Nop) Error(msg string)             {}

func finalizedMessage(documents int) string {
	if documents == 1 {
		return "Consultation finalized: 1 document"
	}
	return fmt.Sprintf("Consultation finalized: %d documents", documents)
}
