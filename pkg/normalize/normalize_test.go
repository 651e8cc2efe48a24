package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowpulse/flowpulse/pkg/normalize"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"arrow separator", "Google Sheets -> Slack", "google sheets slack"},
		{"punctuation and spacing", "n8n   Automation!!!", "n8n automation"},
		{"already canonical", "google sheets slack", "google sheets slack"},
		{"mixed case", "N8N   slack integration!!", "n8n slack integration"},
		{"empty", "", ""},
		{"only punctuation", "!!! ???", ""},
		{"underscores kept", "import_csv helper", "import_csv helper"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize.Key(tt.input))
		})
	}
}

func TestKeyIdempotent(t *testing.T) {
	inputs := []string{
		"Google Sheets -> Slack",
		"n8n   Automation!!!",
		"  Webhook  /  HTTP   Request  ",
		"Ünïcode — Dashes",
	}

	for _, in := range inputs {
		once := normalize.Key(in)
		assert.Equal(t, once, normalize.Key(once), "Key must be idempotent for %q", in)
	}
}

func TestSimilarity(t *testing.T) {
	// intersection {b,c} = 2, union {a,b,c,d} = 4.
	assert.Equal(t, 50, normalize.Similarity("a b c", "b c d"))

	assert.Equal(t, 100, normalize.Similarity("slack alert", "Slack   Alert!!"))
	assert.Equal(t, 0, normalize.Similarity("", "a b"))
	assert.Equal(t, 0, normalize.Similarity("a b", ""))
	assert.Equal(t, 0, normalize.Similarity("x y", "a b"))
}
