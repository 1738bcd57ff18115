package callbacks_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/effective-security/toolgate/callbacks"
	"github.com/effective-security/toolgate/gateway"
	"github.com/effective-security/toolgate/tools"
	"github.com/stretchr/testify/assert"
)

type namedTool struct{ name string }

func (f namedTool) Name() string        { return f.name }
func (f namedTool) Description() string { return f.name }
func (f namedTool) Parameters() any     { return nil }
func (f namedTool) Invoke(_ context.Context, _ string) *gateway.Result {
	return gateway.Success(map[string]any{})
}

func Test_Printer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cb := callbacks.NewPrinter(&buf)
	ctx := context.Background()
	tool := namedTool{name: "get_weather"}

	cb.OnToolStart(ctx, tool, `{"city":"London"}`)
	cb.OnToolEnd(ctx, tool, `{"city":"London"}`, gateway.Failure(gateway.KindNotFound, "no weather data for London"))

	out := buf.String()
	assert.Contains(t, out, `[get_weather] => {"city":"London"}`)
	assert.Contains(t, out, `"error":"not_found"`)
}

type countingCallback struct {
	started int
	ended   int
}

func (c *countingCallback) OnToolStart(_ context.Context, _ tools.ITool, _ string) { c.started++ }
func (c *countingCallback) OnToolEnd(_ context.Context, _ tools.ITool, _ string, _ *gateway.Result) {
	c.ended++
}

func Test_Fanout(t *testing.T) {
	t.Parallel()

	first := &countingCallback{}
	second := &countingCallback{}
	cb := callbacks.NewFanout(first)
	cb.Add(second)
	cb.Add(callbacks.NewNoop())

	ctx := context.Background()
	tool := namedTool{name: "chat"}
	cb.OnToolStart(ctx, tool, `{}`)
	cb.OnToolEnd(ctx, tool, `{}`, gateway.Success("ok"))
	cb.OnToolEnd(ctx, tool, `{}`, gateway.Success("ok"))

	assert.Equal(t, 1, first.started)
	assert.Equal(t, 2, first.ended)
	assert.Equal(t, 1, second.started)
	assert.Equal(t, 2, second.ended)
}
