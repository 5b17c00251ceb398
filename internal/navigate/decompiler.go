package navigate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Decompiler produces <OutputDir>/<className>.java for a class
type Decompiler interface {
	Decompile(ctx context.Context, className string) error
	OutputDir() string
}

// SourcePath returns where a decompiler puts the source of className
func SourcePath(d Decompiler, className string) string {
	return filepath.Join(d.OutputDir(), className+".java")
}

// CommandDecompiler runs an external decompiler. {class} and {output} in
// Command are replaced with the class name and the output directory. A
// command that prints the source has its stdout written to the output file;
// a silent command must write the file itself.
type CommandDecompiler struct {
	Command []string
	Dir     string
}

// OutputDir implements Decompiler
func (d *CommandDecompiler) OutputDir() string {
	return d.Dir
}

// Decompile implements Decompiler
func (d *CommandDecompiler) Decompile(ctx context.Context, className string) error {
	if len(d.Command) == 0 {
		return errors.New("no decompiler command configured")
	}
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create decompilation directory: %w", err)
	}

	args := make([]string, len(d.Command))
	for i, a := range d.Command {
		a = strings.ReplaceAll(a, "{class}", className)
		args[i] = strings.ReplaceAll(a, "{output}", d.Dir)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Running decompiler", "class", className, "command", args[0])
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("decompiler failed for %s: %w: %s", className, err, strings.TrimSpace(stderr.String()))
	}

	target := SourcePath(d, className)
	if stdout.Len() == 0 {
		if _, err := os.Stat(target); err != nil {
			return fmt.Errorf("decompiler produced no source for %s: %s", className, strings.TrimSpace(stderr.String()))
		}
		return nil
	}
	if err := os.WriteFile(target, stdout.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write decompiled source: %w", err)
	}
	return nil
}
