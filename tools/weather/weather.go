package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/config"
	"github.com/effective-security/toolgate/gateway"
	"github.com/effective-security/toolgate/pkg/httpclient"
	"github.com/effective-security/toolgate/schema"
	"github.com/effective-security/toolgate/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "weather")

const ToolName = "get_weather"

const (
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

	UnitsMetric   = "metric"
	UnitsImperial = "imperial"

	CityMaxLen = 80
)

// Query represents the tool input.
type Query struct {
	City  string `json:"city" yaml:"city" validate:"required,max=80" jsonschema:"title=City,description=City name to look up."`
	Units string `json:"units,omitempty" yaml:"units,omitempty" validate:"omitempty,oneof=metric imperial" jsonschema:"title=Units,description=Temperature units: metric or imperial."`
}

// Report is the flat weather payload returned on success.
type Report struct {
	City       string  `json:"city"`
	Country    string  `json:"country,omitempty"`
	Temp       float64 `json:"temp"`
	FeelsLike  float64 `json:"feels_like"`
	Humidity   int64   `json:"humidity"`
	WindSpeed  float64 `json:"wind_speed,omitempty"`
	Conditions string  `json:"conditions,omitempty"`
	Units      string  `json:"units"`
}

// Tool translates a weather query into one upstream call and a typed
// result. It performs no retries of its own; the client's outcome is final.
type Tool struct {
	name        string
	description string
	funcParams  any

	apiKey       string
	baseURL      string
	defaultUnits string
	client       *httpclient.Client
}

var _ tools.Tool[Query, Report] = (*Tool)(nil)

// New returns the weather tool.
func New(cfg *config.Weather, client *httpclient.Client) (*Tool, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("weather API key is not set")
	}
	sc, err := schema.New(reflect.TypeOf(Query{}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	t := &Tool{
		name:         ToolName,
		description:  "Returns current weather conditions for a city.",
		funcParams:   sc.Parameters,
		apiKey:       cfg.APIKey,
		baseURL:      values.StringsCoalesce(cfg.BaseURL, DefaultBaseURL),
		defaultUnits: values.StringsCoalesce(cfg.DefaultUnits, UnitsMetric),
		client:       client,
	}
	return t, nil
}

func (t *Tool) Name() string {
	return t.name
}

func (t *Tool) Description() string {
	return t.description
}

func (t *Tool) Parameters() any {
	return t.funcParams
}

// upstream response schema; treat as untrusted and validate the fields
// this tool actually needs.
type upstreamReport struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int64   `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// Run fetches current weather for the query.
func (t *Tool) Run(ctx context.Context, req *Query) (*Report, error) {
	city := strings.TrimSpace(req.City)
	if city == "" {
		return nil, gateway.NewError(gateway.KindValidation, "city cannot be empty")
	}
	if len(city) > CityMaxLen {
		return nil, gateway.Errorf(gateway.KindValidation, "city too long (max %d chars)", CityMaxLen)
	}
	units := values.StringsCoalesce(req.Units, t.defaultUnits)
	if units != UnitsMetric && units != UnitsImperial {
		return nil, gateway.NewError(gateway.KindValidation, "units must be metric or imperial")
	}

	u, err := url.Parse(t.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base URL")
	}
	q := u.Query()
	q.Set("q", city)
	q.Set("appid", t.apiKey)
	q.Set("units", units)
	u.RawQuery = q.Encode()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}

	resp, err := t.client.Do(ctx, hreq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, gateway.Errorf(gateway.KindNotFound, "no weather data for %s", city)
	default:
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "upstream_error",
			"code", resp.StatusCode,
			"city", city,
		)
		return nil, gateway.Errorf(gateway.KindUpstream, "weather upstream returned status %d", resp.StatusCode)
	}

	var body upstreamReport
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, gateway.NewError(gateway.KindUpstream, "weather upstream returned a malformed response")
	}
	if body.Name == "" {
		return nil, gateway.NewError(gateway.KindUpstream, "weather upstream response is missing required fields")
	}

	rep := &Report{
		City:      body.Name,
		Country:   body.Sys.Country,
		Temp:      body.Main.Temp,
		FeelsLike: body.Main.FeelsLike,
		Humidity:  body.Main.Humidity,
		WindSpeed: body.Wind.Speed,
		Units:     units,
	}
	if len(body.Weather) > 0 {
		rep.Conditions = body.Weather[0].Description
	}
	return rep, nil
}

// Invoke implements tools.ITool.
func (t *Tool) Invoke(ctx context.Context, input string) *gateway.Result {
	var req Query
	if err := tools.DecodeInput(input, &req); err != nil {
		return gateway.ResultFromError(err)
	}
	rep, err := t.Run(ctx, &req)
	if err != nil {
		return gateway.ResultFromError(err)
	}
	return gateway.Success(rep)
}
