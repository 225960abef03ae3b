package injection

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
)

type wtypeBackend struct{}

func (wtypeBackend) Name() string { return "wtype" }

func (wtypeBackend) Available() error {
	if os.Getenv("WAYLAND_DISPLAY") == "" {
		return fmt.Errorf("not a Wayland session")
	}
	if _, err := exec.LookPath("wtype"); err != nil {
		return fmt.Errorf("wtype not found: %w (install wtype package)", err)
	}
	return nil
}

func (wtypeBackend) Inject(ctx context.Context, text string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// "-" reads the text from stdin
	cmd := exec.CommandContext(ctx, "wtype", "-")
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("wtype failed: %w", err)
	}
	return nil
}

type ydotoolBackend struct{}

func (ydotoolBackend) Name() string { return "ydotool" }

func (y ydotoolBackend) Available() error {
	if _, err := exec.LookPath("ydotool"); err != nil {
		return fmt.Errorf("ydotool not found: %w (install ydotool package)", err)
	}

	socketPath := y.socketPath()
	if socketPath == "" {
		return fmt.Errorf("ydotoold socket not found - ensure ydotoold is running")
	}

	// ydotoold v1.0.4+ uses SOCK_DGRAM sockets; older versions use streams
	conn, err := net.Dial("unixgram", socketPath)
	if err != nil {
		conn, err = net.DialTimeout("unix", socketPath, 500*time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("ydotoold not responding at %s: %w", socketPath, err)
	}
	conn.Close()
	return nil
}

func (ydotoolBackend) socketPath() string {
	if sock := os.Getenv("YDOTOOL_SOCKET"); sock != "" {
		if _, err := os.Stat(sock); err == nil {
			return sock
		}
	}

	var paths []string
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ".ydotool_socket"))
	}
	paths = append(paths,
		fmt.Sprintf("/run/user/%d/.ydotool_socket", os.Getuid()),
		"/tmp/.ydotool_socket",
	)
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (ydotoolBackend) Inject(ctx context.Context, text string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ydotool", "type", "--file", "-")
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ydotool failed: %w", err)
	}
	return nil
}

// clipboardBackend leaves the text on the clipboard for the user to paste.
type clipboardBackend struct{}

func (clipboardBackend) Name() string { return "clipboard" }

func (clipboardBackend) Available() error {
	if clipboard.Unsupported {
		return fmt.Errorf("no clipboard utility found (install wl-clipboard, xclip or xsel)")
	}
	return nil
}

func (clipboardBackend) Inject(ctx context.Context, text string, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- clipboard.WriteAll(text) }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("clipboard write timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}
