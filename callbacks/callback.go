// Package callbacks provides reusable tool lifecycle callbacks for the
// dispatch layer.
package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/toolgate/gateway"
	"github.com/effective-security/toolgate/tools"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ tools.Callback = (*Noop)(nil)
	_ tools.Callback = (*Printer)(nil)
	_ tools.Callback = (*PackageLogger)(nil)
	_ tools.Callback = (*Fanout)(nil)
)

// Fanout forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []tools.Callback
}

func NewFanout(callbacks ...tools.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback tools.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, input)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, input string, res *gateway.Result) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, input, res)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnToolStart(_ context.Context, _ tools.ITool, _ string) {}

func (l *Noop) OnToolEnd(_ context.Context, _ tools.ITool, _ string, _ *gateway.Result) {}

// Printer writes the events to the given writer, typically stderr in
// interactive runs.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (l *Printer) OnToolStart(_ context.Context, tool tools.ITool, input string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%s] => %s\n", tool.Name(), input)
}

func (l *Printer) OnToolEnd(_ context.Context, tool tools.ITool, _ string, res *gateway.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%s] <= %s\n", tool.Name(), res.String())
}

// PackageLogger emits the events to the structured log.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", tool.Name(),
		"input", input,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, _ string, res *gateway.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", tool.Name(),
		"ok", res.OK,
		"error", string(res.Error),
	)
}
