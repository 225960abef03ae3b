// Package deps reports which external programs the scribe can use.
package deps

import (
	"os/exec"
	"strings"
)

// Status represents the installation status of a dependency
type Status struct {
	Name      string
	Purpose   string
	Required  bool
	Installed bool
	Path      string
	Version   string
}

// Tool describes an external program and how to ask it for its version.
type Tool struct {
	Name        string
	Purpose     string
	VersionFlag string
	Required    bool
}

// Tools lists the programs used for capture, notifications, clipboard and
// typing into other windows.
var Tools = []Tool{
	{Name: "pw-record", Purpose: "microphone capture (pipewire backend)", VersionFlag: "--version", Required: true},
	{Name: "notify-send", Purpose: "desktop notifications", VersionFlag: "--version"},
	{Name: "wl-copy", Purpose: "clipboard on Wayland", VersionFlag: "--version"},
	{Name: "xclip", Purpose: "clipboard on X11", VersionFlag: "-version"},
	{Name: "wtype", Purpose: "typing documents on Wayland"},
	{Name: "ydotool", Purpose: "typing documents through ydotoold"},
}

// ToolsFor marks pw-record required only for the pipewire recording backend.
func ToolsFor(recordingBackend string) []Tool {
	out := make([]Tool, len(Tools))
	copy(out, Tools)
	for i := range out {
		if out[i].Name == "pw-record" {
			out[i].Required = recordingBackend == "pipewire"
		}
	}
	return out
}

var lookPath = exec.LookPath

// Check reports whether tool is on PATH and, if so, its version line.
func Check(tool Tool) Status {
	status := Status{Name: tool.Name, Purpose: tool.Purpose, Required: tool.Required}
	path, err := lookPath(tool.Name)
	if err != nil {
		return status
	}
	status.Installed = true
	status.Path = path

	if tool.VersionFlag == "" {
		return status
	}
	// some tools print their version on stderr
	output, err := exec.Command(path, tool.VersionFlag).CombinedOutput()
	if err == nil {
		status.Version = firstLine(string(output))
	}
	return status
}

// CheckAll checks tools in order.
func CheckAll(tools []Tool) []Status {
	out := make([]Status, 0, len(tools))
	for _, tool := range tools {
		out = append(out, Check(tool))
	}
	return out
}

// Missing returns the names of required tools that are not installed.
func Missing(statuses []Status) []string {
	var names []string
	for _, s := range statuses {
		if s.Required && !s.Installed {
			names = append(names, s.Name)
		}
	}
	return names
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
