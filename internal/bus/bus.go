// Package bus is the control socket between the scribe CLI and the daemon.
// A request is one line: a command byte, optionally followed by a space and
// an argument. The reply is one line starting with OK, STATUS or ERR.
package bus

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const SockName = "control.sock"
const PidName = "scribe.pid"
const ProtoVer = "1.1"

const (
	CmdToggle   byte = 't'
	CmdFinalize byte = 'f'
	CmdClear    byte = 'c'
	CmdStatus   byte = 's'
	CmdVersion  byte = 'v'
	CmdQuit     byte = 'q'
	// argument carrying commands
	CmdPatient  byte = 'p'
	CmdScenario byte = 'n'
	CmdExport   byte = 'e'
)

// ErrNotRunning is returned when no daemon listens on the socket.
var ErrNotRunning = errors.New("daemon not running")

// RemoteError is an ERR reply.
type RemoteError struct {
	Reply string
}

func (e *RemoteError) Error() string {
	return strings.TrimPrefix(e.Reply, "ERR ")
}

func dir() (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cache, "scribe"), nil
}

// ~/.cache/scribe/control.sock
func SockPath() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, SockName), nil
}

// ~/.cache/scribe/scribe.pid
func PidPath() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, PidName), nil
}

func Listen() (net.Listener, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(sp), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(sp) // stale socket from last run
	return net.Listen("unix", sp)
}

func Dial() (net.Conn, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	c, err := net.Dial("unix", sp)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: start it with scribe serve", ErrNotRunning)
		}
		return nil, err
	}
	return c, nil
}

// Request is a parsed request line.
type Request struct {
	Cmd byte
	Arg string
}

func (r Request) String() string {
	if r.Arg == "" {
		return string(r.Cmd)
	}
	return string(r.Cmd) + " " + r.Arg
}

// ParseRequest splits a request line. Newlines inside an argument are not
// representable.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Request{}, errors.New("empty")
	}
	req := Request{Cmd: line[0]}
	if len(line) > 1 {
		if line[1] != ' ' {
			return Request{}, fmt.Errorf("malformed request %q", line)
		}
		req.Arg = line[2:]
	}
	return req, nil
}

// SendCommand sends a bare command and returns the raw reply line.
func SendCommand(cmd byte) (string, error) {
	return send(Request{Cmd: cmd})
}

// Send sends cmd with arg and returns the reply without its newline. An ERR
// reply becomes a *RemoteError.
func Send(cmd byte, arg string) (string, error) {
	if strings.ContainsAny(arg, "\r\n") {
		return "", fmt.Errorf("argument must be a single line")
	}
	resp, err := send(Request{Cmd: cmd, Arg: arg})
	if err != nil {
		return "", err
	}
	resp = strings.TrimRight(resp, "\n")
	if strings.HasPrefix(resp, "ERR") {
		return "", &RemoteError{Reply: resp}
	}
	return resp, nil
}

func send(req Request) (string, error) {
	c, err := Dial()
	if err != nil {
		return "", err
	}
	defer c.Close()

	// finalize waits for the systematization round trip
	_ = c.SetDeadline(time.Now().Add(5 * time.Minute))

	_, err = c.Write([]byte(req.String() + "\n"))
	if err != nil {
		return "", err
	}

	resp, err := bufio.NewReader(c).ReadString('\n')
	return resp, err
}

// ParseStatus reads the key=value pairs of a STATUS reply. Values may not
// contain spaces.
func ParseStatus(reply string) map[string]string {
	out := make(map[string]string)
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(reply), "STATUS"))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

type pidManager struct {
	path string
}

func newPidManager() (*pidManager, error) {
	path, err := PidPath()
	if err != nil {
		return nil, err
	}
	return &pidManager{path: path}, nil
}

func (p *pidManager) checkExisting() error {
	pidData, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil // no existing daemon
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err == nil && (pid == os.Getpid() || p.isProcessAlive(pid)) {
		return fmt.Errorf("daemon already running with PID %d", pid)
	}

	// stale or unreadable pid file
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (p *pidManager) isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (p *pidManager) create() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (p *pidManager) remove() error {
	return os.Remove(p.path)
}

func CheckExistingDaemon() error {
	pm, err := newPidManager()
	if err != nil {
		return err
	}
	return pm.checkExisting()
}

func CreatePidFile() error {
	pm, err := newPidManager()
	if err != nil {
		return err
	}
	return pm.create()
}

func RemovePidFile() error {
	pm, err := newPidManager()
	if err != nil {
		return err
	}
	return pm.remove()
}
