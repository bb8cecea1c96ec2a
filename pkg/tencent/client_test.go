package tencent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestTranslate(t *testing.T) {
	var calls [][]string
	tr := &Translator{target: "zh", batch: func(ctx context.Context, texts []string) ([]string, error) {
		calls = append(calls, append([]string(nil), texts...))
		out := make([]string, len(texts))
		for i, s := range texts {
			out[i] = "译:" + s
		}
		return out, nil
	}}

	got, err := tr.Translate(context.Background(), []string{"hello", "", "  ", "world"})
	if err != nil {
		t.Fatalf("failed to translate text: %v", err)
	}
	want := []string{"译:hello", "", "", "译:world"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if len(calls) != 1 || len(calls[0]) != 2 {
		t.Errorf("Expected blank lines to be skipped in one batch, got %v", calls)
	}
}

func TestTranslateChunks(t *testing.T) {
	batches := 0
	tr := &Translator{target: "en", batch: func(ctx context.Context, texts []string) ([]string, error) {
		batches++
		if len(texts) > maxBatchLines {
			t.Errorf("batch too large: %d lines", len(texts))
		}
		return texts, nil
	}}

	lines := make([]string, 120)
	for i := range lines {
		lines[i] = strings.Repeat("x", 10)
	}
	got, err := tr.Translate(context.Background(), lines)
	if err != nil {
		t.Fatalf("failed to translate text: %v", err)
	}
	if len(got) != 120 || got[119] != lines[119] {
		t.Errorf("translations not aligned")
	}
	if batches != 3 {
		t.Errorf("Expected 3 batches, got %d", batches)
	}
}

func TestTranslateError(t *testing.T) {
	tr := &Translator{batch: func(ctx context.Context, texts []string) ([]string, error) {
		return nil, errors.New("AuthFailure")
	}}
	if _, err := tr.Translate(context.Background(), []string{"a"}); err == nil {
		t.Error("Expected error")
	}

	short := &Translator{batch: func(ctx context.Context, texts []string) ([]string, error) {
		return nil, nil
	}}
	if _, err := short.Translate(context.Background(), []string{"a"}); err == nil {
		t.Error("Expected length mismatch error")
	}
}
