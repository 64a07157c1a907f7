// Package monitor validates inbound request bodies against JSON schema
// contracts before they reach the dispatcher.
//
// The contracts only check shape (types, lengths). Semantic checks such as a
// missing affiliate key or a too-small amount are left to the dispatcher so
// they surface with their own discriminators.
package monitor

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Contract names.
const (
	ContractLogin          = "login"
	ContractCheckout       = "checkout"
	ContractActivityResult = "activity_result"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ContractMonitor validates documents against one compiled JSON schema.
type ContractMonitor struct {
	name   string
	schema *gojsonschema.Schema
}

// NewContractMonitor compiles schema.
func NewContractMonitor(name string, schema []byte) (*ContractMonitor, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("error loading or compiling schema %s: %w", name, err)
	}
	return &ContractMonitor{name: name, schema: compiled}, nil
}

// Validate validates the given request body against the schema.
// It returns true if valid, or false and a list of validation errors if invalid.
// A body that is not JSON is reported through the error return.
func (cm *ContractMonitor) Validate(requestBody []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(requestBody))
	if err != nil {
		return false, nil, fmt.Errorf("error during validation: %w", err)
	}

	if result.Valid() {
		return true, nil, nil
	}

	var errors []string
	for _, desc := range result.Errors() {
		errors = append(errors, desc.String())
	}
	return false, errors, nil
}

// Contracts is the set of bridge request contracts keyed by name.
type Contracts map[string]*ContractMonitor

// LoadContracts compiles the embedded request schemas.
func LoadContracts() (Contracts, error) {
	names := []string{ContractLogin, ContractCheckout, ContractActivityResult}
	out := make(Contracts, len(names))
	for _, name := range names {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("monitor: missing schema %s: %w", name, err)
		}
		cm, err := NewContractMonitor(name, raw)
		if err != nil {
			return nil, err
		}
		out[name] = cm
	}
	return out, nil
}

// Check validates body against the named contract and folds the result into
// a single error. Unknown contract names pass.
func (c Contracts) Check(name string, body []byte) error {
	cm, ok := c[name]
	if !ok {
		return nil
	}
	valid, errs, err := cm.Validate(body)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("%s", FormatErrors(errs))
	}
	return nil
}

// FormatErrors formats a slice of validation error strings into a single string.
func FormatErrors(validationErrors []string) string {
	if len(validationErrors) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(validationErrors, "; ")
}
