package player

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	mprisPrefix      = "org.mpris.MediaPlayer2."
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
)

var logger = log.With().Str("component", "player").Logger()

// MPRIS reads the now-playing state of a media player over the D-Bus session
// bus. With an empty service name the first player that is playing (or else
// the first one found) is used, the way playerctl picks one.
type MPRIS struct {
	conn    *dbus.Conn
	service string
	now     func() time.Time
}

func NewMPRIS(service string) (*MPRIS, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	if service != "" && !strings.HasPrefix(service, mprisPrefix) {
		service = mprisPrefix + service
	}
	return &MPRIS{conn: conn, service: service, now: time.Now}, nil
}

func (m *MPRIS) Close() error {
	return m.conn.Close()
}

func (m *MPRIS) Current(ctx context.Context) (*Snapshot, error) {
	service, err := m.resolveService(ctx)
	if err != nil {
		return nil, err
	}
	if service == "" {
		return nil, nil
	}

	obj := m.conn.Object(service, mprisPath)

	prop, err := obj.GetProperty(mprisPlayerIface + ".Metadata")
	if err != nil {
		// 播放器已退出
		logger.Debug().Err(err).Str("service", service).Msg("Failed to read metadata")
		return nil, nil
	}
	metadata, ok := prop.Value().(map[string]dbus.Variant)
	if !ok {
		return nil, fmt.Errorf("unexpected metadata type %T", prop.Value())
	}

	track := trackFromMetadata(metadata)
	if !track.Valid() {
		return nil, nil
	}

	status := m.stringProperty(obj, "PlaybackStatus")
	sample := Sample{Rate: rateFor(status, m.floatProperty(obj, "Rate", 1))}

	if pos, err := obj.GetProperty(mprisPlayerIface + ".Position"); err == nil {
		if us, ok := pos.Value().(int64); ok {
			sample.Elapsed = microsToSeconds(us)
			sample.At = m.now()
		}
	} else {
		logger.Debug().Err(err).Str("service", service).Msg("Player does not report position")
	}

	return &Snapshot{Track: track, Sample: sample}, nil
}

func (m *MPRIS) resolveService(ctx context.Context) (string, error) {
	if m.service != "" {
		return m.service, nil
	}

	var names []string
	call := m.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0)
	if err := call.Store(&names); err != nil {
		return "", fmt.Errorf("failed to list bus names: %w", err)
	}

	var first string
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		if first == "" {
			first = name
		}
		if m.stringProperty(m.conn.Object(name, mprisPath), "PlaybackStatus") == "Playing" {
			return name, nil
		}
	}
	return first, nil
}

func (m *MPRIS) stringProperty(obj dbus.BusObject, name string) string {
	prop, err := obj.GetProperty(mprisPlayerIface + "." + name)
	if err != nil {
		return ""
	}
	s, _ := prop.Value().(string)
	return s
}

func (m *MPRIS) floatProperty(obj dbus.BusObject, name string, fallback float64) float64 {
	prop, err := obj.GetProperty(mprisPlayerIface + "." + name)
	if err != nil {
		return fallback
	}
	f, ok := prop.Value().(float64)
	if !ok {
		return fallback
	}
	return f
}

func trackFromMetadata(metadata map[string]dbus.Variant) Track {
	return Track{
		Title:    extractString(metadata, "xesam:title"),
		Artist:   extractArtist(metadata, "xesam:artist"),
		Album:    extractString(metadata, "xesam:album"),
		Duration: extractLength(metadata, "mpris:length"),
	}
}

// rateFor maps PlaybackStatus and Rate to a Sample rate.
func rateFor(status string, rate float64) float64 {
	switch status {
	case "Paused", "Stopped":
		return 0
	}
	return rate
}

func microsToSeconds(us int64) float64 {
	if us < 0 {
		return 0
	}
	return float64(us) / 1e6
}

func extractString(metadata map[string]dbus.Variant, key string) string {
	v, ok := metadata[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return strings.TrimSpace(s)
}

func extractArtist(metadata map[string]dbus.Variant, key string) string {
	v, ok := metadata[key]
	if !ok {
		return ""
	}
	switch typed := v.Value().(type) {
	case []string:
		return strings.TrimSpace(strings.Join(typed, ", "))
	case string:
		return strings.TrimSpace(typed)
	}
	return ""
}

func extractLength(metadata map[string]dbus.Variant, key string) float64 {
	v, ok := metadata[key]
	if !ok {
		return 0
	}
	switch typed := v.Value().(type) {
	case int64:
		return microsToSeconds(typed)
	case uint64:
		return float64(typed) / 1e6
	}
	return 0
}
