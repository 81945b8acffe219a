package customtool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// ValidateArguments checks args against a tool's declared JSON input
// schema, grounded on the corpus's use of santhosh-tekuri/jsonschema/v5
// for request-body validation.
func ValidateArguments(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal input schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(raw))); err != nil {
		return fmt.Errorf("failed to load input schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile input schema: %w", err)
	}

	if err := compiled.Validate(args); err != nil {
		return fmt.Errorf("%w: %v", vmcp.ErrBadArguments, err)
	}
	return nil
}
