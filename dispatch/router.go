package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/gateway"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/toolgate/tools"
	"github.com/effective-security/toolgate/utils"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "dispatch")

// Router is the single entry point mapping a named tool invocation to
// the matching service. It is the last line of defense for the uniform
// contract: unknown tools, panics, and contract-violating results are
// reported as internal errors, never propagated raw.
// Router retains no state between invocations.
type Router struct {
	toolsByName map[string]tools.ITool
	toolsList   []tools.ITool
	callback    tools.Callback
}

// Option configures the Router.
type Option func(*Router)

// WithCallback sets lifecycle notifications for every dispatch.
func WithCallback(cb tools.Callback) Option {
	return func(r *Router) { r.callback = cb }
}

// New returns a Router with no tools registered.
func New(opts ...Option) *Router {
	r := &Router{
		toolsByName: make(map[string]tools.ITool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds tools to the Router. Names are case-insensitive and
// must be unique.
func (r *Router) Register(list ...tools.ITool) error {
	for _, tool := range list {
		name := strings.ToLower(tool.Name())
		if r.toolsByName[name] != nil {
			return errors.Errorf("tool already registered: %s", tool.Name())
		}
		r.toolsByName[name] = tool
		r.toolsList = append(r.toolsList, tool)
	}
	return nil
}

// Tools returns the registered tools in registration order.
func (r *Router) Tools() []tools.ITool {
	return r.toolsList
}

// Describe returns a JSON block advertising the registered tools.
func (r *Router) Describe() string {
	return tools.GetDescriptions(r.toolsList...)
}

// Invoke dispatches a named tool invocation with structured arguments
// and always returns a shaped Result.
func (r *Router) Invoke(ctx context.Context, name string, args values.MapAny) (res *gateway.Result) {
	id := uuid.NewString()
	started := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "panic",
				"tool", name,
				"id", id,
				"err", rec,
			)
			metricskey.StatsToolCallsFailed.IncrCounter(1, name)
			res = gateway.Failure(gateway.KindInternal, "tool execution failed")
		}
	}()

	tool, ok := r.toolsByName[strings.ToLower(name)]
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
		return gateway.Failure(gateway.KindInternal, "unknown tool: "+name)
	}

	input := utils.ToJSON(args)
	if r.callback != nil {
		r.callback.OnToolStart(ctx, tool, input)
	}

	res = ensureContract(tool.Invoke(ctx, input))

	metricskey.PerfToolCall.MeasureSince(started, tool.Name())
	if res.OK {
		metricskey.StatsToolCallsSucceeded.IncrCounter(1, tool.Name())
	} else {
		metricskey.StatsToolCallsFailed.IncrCounter(1, tool.Name())
	}
	if r.callback != nil {
		r.callback.OnToolEnd(ctx, tool, input, res)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"tool", tool.Name(),
		"id", id,
		"ok", res.OK,
		"elapsed", time.Since(started).String(),
	)
	return res
}

// ensureContract normalizes anything a tool returned that violates the
// mutual-exclusivity invariant of the contract.
func ensureContract(res *gateway.Result) *gateway.Result {
	if res == nil {
		return gateway.Failure(gateway.KindInternal, "tool returned no result")
	}
	if !res.Valid() {
		return gateway.Failure(gateway.KindInternal, "tool violated the result contract")
	}
	return res
}
