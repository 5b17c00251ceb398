package companion

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/tth05/code-viewer/internal/navigate"
	"github.com/tth05/code-viewer/internal/protocol"
)

// HandleOpenClass decompiles the requested class and opens its view.
// It runs on the receive loop.
func (c *Companion) HandleOpenClass(ctx context.Context, msg protocol.OpenClass) {
	if err := c.decompiler.Decompile(ctx, msg.ClassName); err != nil {
		slog.Error("Unable to decompile class requested by companion app", "class", msg.ClassName, "error", err)
		return
	}
	if err := c.viewer.OpenClass(ctx, msg.ClassName, -1); err != nil {
		slog.Error("Unable to open class requested by companion app", "class", msg.ClassName, "error", err)
	}
}

// HandleNavigate resolves a click in the helper and opens the declaration.
// A failed resolution sends nothing back.
func (c *Companion) HandleNavigate(ctx context.Context, msg protocol.NavigateToSymbol) {
	pos, err := c.pipeline.Navigate(ctx, navigate.Request{
		RelativePath: msg.RelativePath,
		Row:          int(msg.Row),
		Column:       int(msg.Column),
	})
	if err != nil {
		// already logged with the request id
		return
	}
	if err := c.viewer.OpenClass(ctx, pos.ClassName, pos.Line); err != nil {
		slog.Error("Unable to open resolved declaration", "class", pos.ClassName, "line", pos.Line, "error", err)
	}
}

// FileSender sends open-file requests to the helper
type FileSender interface {
	SendOpenFile(path string, line int) error
}

// ChannelViewer shows decompiled classes in the helper itself by asking it
// to open <Dir>/<class>.java
type ChannelViewer struct {
	Sender FileSender
	Dir    string
}

// OpenClass implements navigate.Viewer
func (v ChannelViewer) OpenClass(ctx context.Context, className string, line int) error {
	if line < 0 {
		line = 0
	}
	return v.Sender.SendOpenFile(filepath.Join(v.Dir, className+".java"), line)
}
