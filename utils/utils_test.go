package utils

import (
	"testing"

	"cleanshot/config"

	"github.com/stretchr/testify/assert"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want map[string]string
	}{
		{
			name: "equals form",
			argv: []string{"organize", "--folder=/photos", "--blur=150"},
			want: map[string]string{"command": "organize", "folder": "/photos", "blur": "150"},
		},
		{
			name: "space form and booleans",
			argv: []string{"--debug", "search", "--reference", "/me.jpg", "--preview"},
			want: map[string]string{"command": "search", "debug": "true", "reference": "/me.jpg", "preview": "true"},
		},
		{
			name: "no command",
			argv: []string{"--folder=/x"},
			want: map[string]string{"folder": "/x"},
		},
		{
			name: "value containing equals",
			argv: []string{"serve", "--addr=:8080", "--logfile=a=b.log"},
			want: map[string]string{"command": "serve", "addr": ":8080", "logfile": "a=b.log"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseArgs(tt.argv))
		})
	}
}

func TestFlag(t *testing.T) {
	args := map[string]string{"a": "true", "b": "false", "c": "0", "d": "yes"}
	assert.True(t, Flag(args, "a"))
	assert.False(t, Flag(args, "b"))
	assert.False(t, Flag(args, "c"))
	assert.True(t, Flag(args, "d"))
	assert.False(t, Flag(args, "missing"))
}

func TestParseThreshold(t *testing.T) {
	v, err := ParseThreshold("0.9")
	assert.NoError(t, err)
	assert.Equal(t, 0.9, v)

	for _, bad := range []string{"1.5", "-0.1", "abc"} {
		v, err = ParseThreshold(bad)
		assert.Error(t, err, bad)
		assert.Equal(t, config.DefaultFaceMatchThreshold, v)
	}
}

func TestParseIntInRange(t *testing.T) {
	n, err := ParseIntInRange("blur", "350", 0, 1000)
	assert.NoError(t, err)
	assert.Equal(t, 350, n)

	_, err = ParseIntInRange("blur", "1001", 0, 1000)
	assert.Error(t, err)
	_, err = ParseIntInRange("blur", "x", 0, 1000)
	assert.Error(t, err)
}

func TestDefaultPaths(t *testing.T) {
	assert.Contains(t, GetDefaultDatabasePath(), config.DefaultDatabaseFile)
	assert.Contains(t, GetDefaultLedgerPath(), config.DefaultLedgerFile)
}
