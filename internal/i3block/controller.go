package i3block

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSignal is SIGRTMIN+21, i.e. `signal=21` in the i3blocks config.
const DefaultSignal = 34 + 21

const refreshInterval = 10 * time.Second

var logger = log.With().Str("component", "i3block").Logger()

// Controller tracks the i3blocks PID and signals it so the lyrics block is
// redrawn as soon as the line changes.
type Controller struct {
	signal   syscall.Signal
	pid      int
	pidMutex sync.RWMutex
	lookup   func() (int, error)
}

func NewController(signal int) *Controller {
	if signal <= 0 {
		signal = DefaultSignal
	}
	return &Controller{
		signal: syscall.Signal(signal),
		pid:    -1,
		lookup: findPID,
	}
}

// Run refreshes the PID every 10 seconds until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	c.refreshPID()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	logger.Info().Int("signal", int(c.signal)).Msg("i3block controller started")

	for {
		select {
		case <-ticker.C:
			c.refreshPID()
		case <-ctx.Done():
			logger.Info().Msg("i3block controller stopped")
			return
		}
	}
}

func (c *Controller) refreshPID() {
	pid, err := c.lookup()
	if err != nil {
		logger.Debug().Err(err).Msg("i3blocks process not found")
		pid = -1
	}

	c.pidMutex.Lock()
	oldPID := c.pid
	c.pid = pid
	c.pidMutex.Unlock()

	if oldPID != pid {
		logger.Info().Int("old_pid", oldPID).Int("pid", pid).Msg("i3blocks PID updated")
	}
}

func (c *Controller) PID() int {
	c.pidMutex.RLock()
	defer c.pidMutex.RUnlock()
	return c.pid
}

// Notify signals i3blocks. Without a known PID it does nothing.
func (c *Controller) Notify() error {
	pid := c.PID()
	if pid <= 0 {
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(c.signal); err != nil {
		// 进程可能已经退出，下次刷新时更新
		return fmt.Errorf("failed to send signal %d to process %d: %w", c.signal, pid, err)
	}
	return nil
}

func findPID() (int, error) {
	output, err := exec.Command("pgrep", "-x", "i3blocks").Output()
	if err == nil {
		if pid, ok := parsePgrep(string(output)); ok {
			return pid, nil
		}
	}

	// pgrep 不可用时用 ps
	output, err = exec.Command("ps", "aux").Output()
	if err != nil {
		return -1, fmt.Errorf("failed to run ps command: %w", err)
	}
	if pid, ok := parsePS(string(output)); ok {
		return pid, nil
	}
	return -1, fmt.Errorf("i3blocks process not found")
}

// parsePgrep takes the first PID when several are listed.
func parsePgrep(output string) (int, bool) {
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 {
			return pid, true
		}
	}
	return -1, false
}

func parsePS(output string) (int, bool) {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 11 {
			continue
		}
		cmd := fields[10]
		if cmd != "i3blocks" && !strings.HasSuffix(cmd, "/i3blocks") {
			continue
		}
		if pid, err := strconv.Atoi(fields[1]); err == nil {
			return pid, true
		}
	}
	return -1, false
}
