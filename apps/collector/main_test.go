package main

import (
	"bytes"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStartupErrors re-executes the test binary as the real main so the
// fatal exit can be observed.
func TestStartupErrors(t *testing.T) {
	if os.Getenv("RUN_MAIN") == "1" {
		main()
		return
	}

	tests := []struct {
		name string
		env  []string
		want []string
	}{
		{
			name: "Bad Log Level",
			env:  []string{"LOG_LEVEL=bogus"},
			want: []string{"loading config", "LogLevel"},
		},
		{
			name: "Bad Base URL",
			env:  []string{"SMOKE_BASE_URL=notaurl"},
			want: []string{"loading config", "BaseURL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := exec.Command(os.Args[0], "-test.run=^TestStartupErrors$")
			cmd.Env = append(os.Environ(), "RUN_MAIN=1")
			cmd.Env = append(cmd.Env, tt.env...)
			var stderr bytes.Buffer
			cmd.Stderr = &stderr

			err := cmd.Run()
			var exitErr *exec.ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 1, exitErr.ExitCode())
			for _, want := range tt.want {
				assert.Contains(t, stderr.String(), want)
			}
		})
	}
}
