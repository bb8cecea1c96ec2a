package i3block

import (
	"errors"
	"os"
	"syscall"
	"testing"
)

func TestParsePgrep(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"1234\n", 1234, true},
		{"1234\n5678\n", 1234, true},
		{"", -1, false},
		{"garbage", -1, false},
	}
	for _, tt := range tests {
		if got, ok := parsePgrep(tt.in); got != tt.want || ok != tt.ok {
			t.Errorf("parsePgrep(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParsePS(t *testing.T) {
	output := `USER         PID %CPU %MEM    VSZ   RSS TTY      STAT START   TIME COMMAND
user        1111  0.0  0.0   6000  2000 pts/0    S+   10:00   0:00 grep i3blocks
user        2222  0.1  0.2  90000 12000 ?        Sl   09:00   0:03 /usr/bin/i3blocks -c conf
user        3333  0.0  0.0   6000  2000 ?        S    09:00   0:00 i3bar --bar_id=bar-0
`
	pid, ok := parsePS(output)
	if !ok || pid != 2222 {
		t.Errorf("Expected 2222, got %d, %v", pid, ok)
	}
	if _, ok := parsePS("USER PID\n"); ok {
		t.Error("Expected no match")
	}
}

func TestRefreshPID(t *testing.T) {
	c := NewController(0)
	if c.signal != syscall.Signal(DefaultSignal) {
		t.Errorf("Expected default signal, got %d", c.signal)
	}

	c.lookup = func() (int, error) { return 4321, nil }
	c.refreshPID()
	if c.PID() != 4321 {
		t.Errorf("Expected PID 4321, got %d", c.PID())
	}

	c.lookup = func() (int, error) { return -1, errors.New("not found") }
	c.refreshPID()
	if c.PID() != -1 {
		t.Errorf("Expected PID reset, got %d", c.PID())
	}
	if err := c.Notify(); err != nil {
		t.Errorf("Expected notify without PID to be a no-op, got %v", err)
	}
}

func TestNotifySelf(t *testing.T) {
	// signal 0 只检查进程是否存在
	c := NewController(0)
	c.signal = syscall.Signal(0)
	c.lookup = func() (int, error) { return os.Getpid(), nil }
	c.refreshPID()
	if err := c.Notify(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
