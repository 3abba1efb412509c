package media

import (
	"bytes"
	"context"
	"os/exec"
)

// runFunc executes a probe tool and returns stdout and stderr separately.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	// #nosec G204 -- tool path comes from config; args are fixed, path is opaque
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	return out, stderr.Bytes(), err
}

// truncate keeps diagnostics from flooding the logs.
func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
