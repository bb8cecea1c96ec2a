package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeClient struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) HandleText(ctx context.Context, msg string) (string, error) {
	f.prompt = msg
	return f.reply, f.err
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantTitle  string
		wantArtist string
	}{
		{"Plain", `{"is_song": true, "title": "晴天", "artist": "周杰伦"}`, "晴天", "周杰伦"},
		{"Fenced", "```json\n{\"is_song\": true, \"title\": \"Yellow\", \"artist\": \"Coldplay\"}\n```", "Yellow", "Coldplay"},
		{"NotSong", `{"is_song": false}`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{reply: tt.reply}
			title, artist, err := NewNormalizer(client).Normalize(context.Background(), "Coldplay - Yellow (Official Video)", "ColdplayVEVO")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if title != tt.wantTitle || artist != tt.wantArtist {
				t.Errorf("Expected %q/%q, got %q/%q", tt.wantTitle, tt.wantArtist, title, artist)
			}
			if !strings.Contains(client.prompt, "Coldplay - Yellow (Official Video)") {
				t.Errorf("Prompt does not carry the raw title: %s", client.prompt)
			}
		})
	}
}

func TestNormalizeErrors(t *testing.T) {
	if _, _, err := NewNormalizer(&fakeClient{err: errors.New("quota")}).Normalize(context.Background(), "a", "b"); err == nil {
		t.Error("Expected client error to propagate")
	}
	if _, _, err := NewNormalizer(&fakeClient{reply: "not json"}).Normalize(context.Background(), "a", "b"); err == nil {
		t.Error("Expected unmarshal error")
	}
}
