package processing

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/octopus-bim/octopus/internal/logger"
)

// Converter turns an IFC file into a WexBIM file. The conversion itself is
// opaque to the pipeline; implementations receive paths on local disk.
type Converter interface {
	Convert(ctx context.Context, ifcPath, wexBimPath string) error
}

// ExecConverter runs an external converter command. The argument list may
// contain the placeholders {input} and {output}; when neither is present the
// two paths are appended in that order.
type ExecConverter struct {
	Command string
	Args    []string
}

func (c *ExecConverter) Convert(ctx context.Context, ifcPath, wexBimPath string) error {
	args := make([]string, 0, len(c.Args)+2)
	substituted := false
	for _, a := range c.Args {
		replaced := strings.ReplaceAll(a, "{input}", ifcPath)
		replaced = strings.ReplaceAll(replaced, "{output}", wexBimPath)
		if replaced != a {
			substituted = true
		}
		args = append(args, replaced)
	}
	if !substituted {
		args = append(args, ifcPath, wexBimPath)
	}

	cmd := exec.CommandContext(ctx, c.Command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		logger.Error("converter command failed", "command", c.Command, "output", string(out), "error", err)
		return fmt.Errorf("converter %s failed: %w", c.Command, err)
	}
	return nil
}

var _ Converter = (*ExecConverter)(nil)
