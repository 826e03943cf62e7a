package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/casualjim/loom"
	"github.com/casualjim/loom/events"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
)

// progressHook prints session events as one colored line each.
type progressHook struct {
	mu sync.Mutex
	w  io.Writer
}

var _ events.Hook = (*progressHook)(nil)

func newProgressHook(w io.Writer) *progressHook {
	return &progressHook{w: w}
}

func (h *progressHook) printf(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.w, format, args...)
}

func (h *progressHook) OnThreadCreated(_ context.Context, e events.ThreadCreated) {
	h.printf("%s %s from %s (%d messages)\n", color.BlueString("thread"), e.ThreadID, e.Source, e.Injected)
}

func (h *progressHook) OnNodeStarted(_ context.Context, e events.NodeStarted) {
	h.printf("%s %s [%s] on %s\n", color.CyanString("node"), e.NodeName, e.NodeID, e.ThreadID)
}

func (h *progressHook) OnToolInvoked(_ context.Context, e events.ToolInvoked) {
	args := strings.ReplaceAll(e.Arguments, ":", "=")
	if e.Error != "" {
		h.printf("  %s%s %s\n", color.YellowString(e.Tool), args, color.RedString(e.Error))
		return
	}
	h.printf("  %s%s -> %s\n", color.YellowString(e.Tool), args, e.Result)
}

func (h *progressHook) OnNodeFinished(_ context.Context, e events.NodeFinished) {
	if e.Error != "" {
		h.printf("%s %s: %s\n", color.RedString(e.Status), e.NodeID, e.Error)
		return
	}
	h.printf("%s %s\n", color.GreenString(e.Status), e.NodeID)
}

func (h *progressHook) OnOutputMerged(_ context.Context, e events.OutputMerged) {
	h.printf("%s %s -> %s\n", color.MagentaString("merged"), e.ThreadID, e.Destination)
}

func (h *progressHook) OnRunFinished(_ context.Context, e events.RunFinished) {
	if e.Error != "" {
		h.printf("%s %s: %s\n", color.MagentaString("run"), e.Status, e.Error)
		return
	}
	h.printf("%s %s\n", color.MagentaString("run"), e.Status)
}

func printSummary(w io.Writer, s *loom.Status) {
	state := color.GreenString(string(s.Status))
	if s.Status == loom.OverallStatus("failed") {
		state = color.RedString(string(s.Status))
	}
	fmt.Fprintf(w, "%s %s: %d/%d nodes completed, %d failed, %d tokens\n",
		color.CyanString("loom"), state,
		s.Progress.Completed, s.Progress.Total, s.Progress.Failed, s.Usage.TotalTokens)
	if s.Error != "" {
		fmt.Fprintf(w, "%s %s\n", color.RedString("error:"), s.Error)
	}
}

func dumpNodeContext(w io.Writer, nc *loom.NodeContext) {
	printer := pp.New()
	printer.SetOutput(w)
	printer.SetColoringEnabled(!color.NoColor)
	printer.Println(nc)
}

// renderMarkdown falls back to the raw text when the terminal renderer is unavailable.
func renderMarkdown(text string) string {
	glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return text
	}
	out, err := glam.Render(text)
	if err != nil {
		return text
	}
	return out
}
