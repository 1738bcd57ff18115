package tools

import (
	"context"
	"strings"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/gateway"
	"github.com/effective-security/toolgate/utils"
	"github.com/go-playground/validator/v10"
)

// ITool is a capability exposed through the uniform dispatch contract.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be advertised
	// to the protocol layer.
	Description() string
	// Parameters returns the parameters definition of the tool arguments.
	Parameters() any

	// Invoke executes the tool with JSON-encoded arguments.
	// Implementations must return a shaped Result and never a raw error;
	// the router treats anything else as an internal fault.
	Invoke(ctx context.Context, input string) *gateway.Result
}

// Callback receives tool lifecycle notifications.
type Callback interface {
	OnToolStart(ctx context.Context, tool ITool, input string)
	OnToolEnd(ctx context.Context, tool ITool, input string, res *gateway.Result)
}

// Tool is a typed tool with a structured request and response.
type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}

var validate = validator.New()

// DecodeInput unmarshals tool arguments into req and validates its
// struct tags. Failures are shaped as validation errors so no network
// call is ever made for bad input.
func DecodeInput[I any](input string, req *I) error {
	if err := ljson.Unmarshal(utils.CleanJSON([]byte(input)), req); err != nil {
		return gateway.NewError(gateway.KindValidation, "invalid arguments: check the schema and try again")
	}
	if err := validate.Struct(req); err != nil {
		var ferrs validator.ValidationErrors
		if errors.As(err, &ferrs) && len(ferrs) > 0 {
			return gateway.Errorf(gateway.KindValidation, "invalid argument: %s", strings.ToLower(ferrs[0].Field()))
		}
		return gateway.NewError(gateway.KindValidation, "invalid arguments")
	}
	return nil
}

type toolDescription struct {
	Name        string `json:"Name" yaml:"Name"`
	Description string `json:"Description" yaml:"Description"`
}

type toolsDescription struct {
	Tools []toolDescription `json:"Tools" yaml:"Tools"`
}

// GetDescriptions returns a JSON block describing the given tools.
func GetDescriptions(list ...ITool) string {
	var d toolsDescription
	for _, tool := range list {
		d.Tools = append(d.Tools, toolDescription{
			Name:        tool.Name(),
			Description: tool.Description(),
		})
	}
	return utils.BackticksJSON(utils.ToJSONIndent(d))
}
