package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total calls to unknown tools",
		RequiredTags: []string{"tool"},
	}

	StatsUpstreamRetries = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_upstream_retries",
		Help:         "stats_upstream_retries provides total retried upstream requests",
		RequiredTags: []string{"host"},
	}

	StatsSearchBlocked = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_search_blocked",
		Help:         "stats_search_blocked provides total blocking signals from the search source",
		RequiredTags: []string{"tool"},
	}

	StatsSearchFallbacks = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_search_fallbacks",
		Help:         "stats_search_fallbacks provides total search calls answered by the fallback response",
		RequiredTags: []string{"tool"},
	}

	StatsSearchBreakerTripped = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_search_breaker_tripped",
		Help:         "stats_search_breaker_tripped provides total circuit breaker trips",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfUpstreamCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_upstream_call",
		Help:         "perf_upstream_call provides duration of upstream request",
		RequiredTags: []string{"host"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfToolCall,
	&PerfUpstreamCall,
	&StatsSearchBlocked,
	&StatsSearchBreakerTripped,
	&StatsSearchFallbacks,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
	&StatsUpstreamRetries,
}
