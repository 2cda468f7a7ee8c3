package hotswap_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/hotswap"
	"github.com/aretw0/hotswap/pkg/adapters/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeLine(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "clean", input: `{"modules":[]}`, want: `{"modules":[]}`},
		{name: "ansi escape", input: "\x1b[31m{}\x1b[0m", want: "[31m{}[0m"},
		{name: "null and bell", input: "{\x00}\a", want: "{}"},
		{name: "tab kept", input: "{\t}", want: "{\t}"},
		{name: "invalid utf8", input: "{\xff}", wantErr: hotswap.ErrInvalidUTF8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hotswap.SanitizeLine(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeLine_SizeLimit(t *testing.T) {
	t.Setenv(hotswap.EnvMaxPacketSize, "8")

	_, err := hotswap.SanitizeLine(strings.Repeat("x", 9))
	assert.ErrorIs(t, err, hotswap.ErrPacketTooLarge)

	got, err := hotswap.SanitizeLine("12345678")
	require.NoError(t, err)
	assert.Equal(t, "12345678", got)
}

func TestRunner_SkipsOversizedLines(t *testing.T) {
	t.Setenv(hotswap.EnvMaxPacketSize, "16")

	c, err := hotswap.New(memory.NewRuntime())
	require.NoError(t, err)

	var out bytes.Buffer
	r := hotswap.NewRunner()
	r.Input = strings.NewReader(`{"modules":[{"moduleId":"A","version":2}]}` + "\n")
	r.Output = &out
	r.Headless = true

	require.NoError(t, r.Run(context.Background(), c))
	assert.Contains(t, out.String(), "line 1: packet exceeds maximum allowed size")
}
