package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"lyricsync/internal/session"
	"lyricsync/pkg/fileutil"
	"lyricsync/pkg/music"

	"github.com/rs/zerolog/log"
)

var logger = log.With().Str("component", "ipc").Logger()

// Server 通过 unix socket 向状态栏等客户端推送当前歌词，每行一条
type Server struct {
	socketPath      string
	statusFile      string
	listener        net.Listener
	clientConns     map[net.Conn]struct{}
	clientConnsLock sync.Mutex
	current         string
	currentLock     sync.Mutex
	lockFile        *os.File
	lockFilePath    string
	wg              sync.WaitGroup
}

// NewServer statusFile may be empty to disable the status file.
func NewServer(socketPath, statusFile string) *Server {
	return &Server{
		socketPath:   socketPath,
		statusFile:   statusFile,
		clientConns:  make(map[net.Conn]struct{}),
		lockFilePath: socketPath + ".lock",
	}
}

func (s *Server) checkAndCleanOldLock() {
	content, err := os.ReadFile(s.lockFilePath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read lock file, removing it")
		os.Remove(s.lockFilePath)
		return
	}

	pid, ok := parsePID(string(content))
	if !ok {
		logger.Warn().Str("content", strings.TrimSpace(string(content))).Msg("Invalid PID in lock file, removing it")
		os.Remove(s.lockFilePath)
		return
	}

	// kill(pid, 0) 只检查进程是否存在
	if syscall.Kill(pid, 0) != nil {
		logger.Info().Int("old_pid", pid).Msg("Process in lock file is not running, removing lock file")
		os.Remove(s.lockFilePath)
		return
	}
	logger.Info().Int("existing_pid", pid).Msg("Another process is still running")
}

func parsePID(s string) (int, bool) {
	pid, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (s *Server) acquireLock() error {
	s.checkAndCleanOldLock()

	file, err := os.OpenFile(s.lockFilePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	// 尝试获取独占锁
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return fmt.Errorf("another lyricsync instance is already running")
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if err := file.Truncate(0); err == nil {
		_, err = fmt.Fprintf(file, "%d\n", os.Getpid())
	}
	if err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return fmt.Errorf("failed to write PID to lock file: %w", err)
	}

	s.lockFile = file
	logger.Info().Str("lock_file", s.lockFilePath).Int("pid", os.Getpid()).Msg("Acquired process lock")
	return nil
}

func (s *Server) releaseLock() {
	if s.lockFile == nil {
		return
	}
	syscall.Flock(int(s.lockFile.Fd()), syscall.LOCK_UN)
	s.lockFile.Close()
	os.Remove(s.lockFilePath)
	logger.Info().Str("lock_file", s.lockFilePath).Msg("Released process lock")
	s.lockFile = nil
}

func (s *Server) Start() error {
	if err := s.acquireLock(); err != nil {
		return err
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.releaseLock()
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.releaseLock()
		return err
	}
	s.listener = listener

	logger.Info().Str("socket_path", s.socketPath).Msg("IPC server listening")

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error().Err(err).Msg("Failed to accept IPC connection")
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	// 新客户端先收到当前歌词
	s.currentLock.Lock()
	s.clientConnsLock.Lock()
	s.clientConns[conn] = struct{}{}
	s.clientConnsLock.Unlock()
	_, err := conn.Write([]byte(s.current + "\n"))
	s.currentLock.Unlock()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to send initial lyrics")
	}

	logger.Info().Msg("Client connected")

	buf := make([]byte, 64)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}

	s.clientConnsLock.Lock()
	delete(s.clientConns, conn)
	s.clientConnsLock.Unlock()
	conn.Close()
	logger.Info().Msg("Client disconnected")
}

// Broadcast sends text to every client and writes it to the status file.
// Repeating the current text is a no-op; it reports whether anything was sent.
func (s *Server) Broadcast(text string) bool {
	text = strings.ReplaceAll(text, "\n", " ")

	s.currentLock.Lock()
	defer s.currentLock.Unlock()
	if text == s.current {
		return false
	}
	s.current = text

	if s.statusFile != "" {
		if err := fileutil.WriteFileAtomic(s.statusFile, []byte(text+"\n"), 0644); err != nil {
			logger.Warn().Err(err).Str("status_file", s.statusFile).Msg("Failed to write status file")
		}
	}

	s.clientConnsLock.Lock()
	defer s.clientConnsLock.Unlock()

	line := []byte(text + "\n")
	for conn := range s.clientConns {
		if _, err := conn.Write(line); err != nil {
			logger.Error().Err(err).Msg("Failed to write to client, removing")
			conn.Close()
			delete(s.clientConns, conn)
		}
	}
	return true
}

func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
		s.wg.Wait()
	}
	s.clientConnsLock.Lock()
	for conn := range s.clientConns {
		conn.Close()
	}
	s.clientConnsLock.Unlock()
	s.releaseLock()
}

// Text renders a session snapshot as the single line shown in a status bar.
func Text(snap session.Snapshot) string {
	switch {
	case snap.Err != nil && snap.Err.Kind == music.KindNotPlaying:
		return "No music playing..."
	case snap.Err != nil:
		return snap.Message()
	case snap.Track == nil:
		return ""
	case snap.Timeline.Empty() && snap.Loading:
		return fmt.Sprintf("... Searching for lyrics for %s - %s ...", snap.Track.Artist, snap.Track.Title)
	case snap.ActiveLine == session.NoLine:
		return ""
	case snap.ActiveText == "":
		return "♪"
	case snap.Translation != "":
		return snap.ActiveText + " / " + snap.Translation
	}
	return snap.ActiveText
}
