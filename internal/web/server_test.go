package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lyricsync/internal/lyrics"
	"lyricsync/internal/player"
	"lyricsync/internal/session"
	"lyricsync/pkg/music"

	"github.com/gorilla/websocket"
)

type fakeSession struct {
	snap      session.Snapshot
	refreshes atomic.Int32

	mu      sync.Mutex
	updates chan session.Snapshot
}

func (f *fakeSession) Snapshot() session.Snapshot { return f.snap }

func (f *fakeSession) Subscribe() (<-chan session.Snapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = make(chan session.Snapshot, 1)
	f.updates <- f.snap
	var once sync.Once
	ch := f.updates
	return ch, func() { once.Do(func() { close(ch) }) }
}

func (f *fakeSession) Refresh() { f.refreshes.Add(1) }

func testSnapshot() session.Snapshot {
	return session.Snapshot{
		Session:      "test",
		Track:        &player.Track{Title: "Song", Artist: "Artist"},
		Timeline:     lyrics.Parse("[00:01.00]one\n[00:02.00]two"),
		Translations: []string{"一", "二"},
		ActiveLine:   1,
		ActiveText:   "two",
		Translation:  "二",
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	sess := &fakeSession{snap: testSnapshot()}
	server := httptest.NewServer(NewServer("", sess).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/snapshot")
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	var got struct {
		Track        player.Track  `json:"track"`
		ActiveLine   int           `json:"active_line"`
		ActiveText   string        `json:"active_text"`
		Lines        []lyrics.Line `json:"lines"`
		Translations []string      `json:"translations"`
		Error        string        `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if got.Track.Title != "Song" || got.ActiveLine != 1 || got.ActiveText != "two" {
		t.Errorf("unexpected snapshot %+v", got)
	}
	if len(got.Lines) != 2 || got.Lines[1].Text != "two" || got.Lines[1].Time != 2 {
		t.Errorf("unexpected lines %+v", got.Lines)
	}
	if len(got.Translations) != 2 || got.Error != "" {
		t.Errorf("unexpected translations or error: %+v", got)
	}
}

func TestSnapshotError(t *testing.T) {
	sess := &fakeSession{snap: session.Snapshot{ActiveLine: session.NoLine, Err: music.ErrNotFound}}
	rec := httptest.NewRecorder()
	NewServer("", sess).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `"error":"Lyrics not found."`) || !strings.Contains(body, `"error_kind":"not_found"`) {
		t.Errorf("error not reported: %s", body)
	}
	if !strings.Contains(body, `"lines":[]`) {
		t.Errorf("Expected empty lines array: %s", body)
	}
}

func TestWebsocket(t *testing.T) {
	sess := &fakeSession{snap: testSnapshot()}
	server := httptest.NewServer(NewServer("", sess).Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	var msg Message
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read initial snapshot: %v", err)
	}
	if msg.ActiveText != "two" || len(msg.Lines) != 2 {
		t.Errorf("unexpected initial message %+v", msg)
	}

	if err := conn.WriteJSON(Command{Action: "refresh"}); err != nil {
		t.Fatalf("failed to send command: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for sess.refreshes.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("refresh was never requested")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// 推送更新
	next := testSnapshot()
	next.ActiveLine, next.ActiveText = 0, "one"
	sess.mu.Lock()
	sess.updates <- next
	sess.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read update: %v", err)
	}
	if msg.ActiveText != "one" {
		t.Errorf("Expected pushed update, got %q", msg.ActiveText)
	}
}
