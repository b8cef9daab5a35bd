package site

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// reindent runs the post-processing command on path, which is appended to
// the command's arguments.
func reindent(ctx context.Context, command []string, path string) error {
	args := append(append([]string(nil), command[1:]...), path)
	cmd := exec.CommandContext(ctx, command[0], args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("reindent %s: %w: %s", command[0], err, msg)
		}
		return fmt.Errorf("reindent %s: %w", command[0], err)
	}
	return nil
}
