package api

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"thoth/cfg"
	"thoth/pkg/domain"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// The documents below only describe the JSON part of a create request.
// They mirror the validate tags in pkg/domain.
type createDoc struct {
	Application applicationDoc `json:"application"`
	Environment environmentDoc `json:"environment"`
}
type applicationDoc struct {
	Name    string `json:"name" jsonschema:"minLength=1,maxLength=100"`
	Version string `json:"version" jsonschema:"minLength=1,maxLength=25"`
}
type environmentDoc struct {
	OperatingSystem    operatingSystemDoc     `json:"operatingSystem"`
	JavaVirtualMachine *javaVirtualMachineDoc `json:"javaVirtualMachine,omitempty"`
}
type operatingSystemDoc struct {
	Name         string `json:"name" jsonschema:"minLength=1,maxLength=64"`
	Version      string `json:"version" jsonschema:"minLength=1,maxLength=32"`
	Architecture string `json:"architecture" jsonschema:"minLength=1,maxLength=12"`
}
type javaVirtualMachineDoc struct {
	Name    string `json:"name" jsonschema:"minLength=1,maxLength=64"`
	Version string `json:"version" jsonschema:"minLength=1,maxLength=32"`
	Vendor  string `json:"vendor" jsonschema:"minLength=1,maxLength=32"`
}

func createSchema(c *cfg.Cfg) ([]byte, error) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	schema := reflector.Reflect(&createDoc{})
	schema.Title = "thoth paste"
	schema.Description = "First part of a multipart/related create request. Further parts are attachments of type " +
		strings.Join(c.AllowedContentTypes, ", ") + "."

	env, ok := schema.Properties.Get("environment")
	if !ok {
		return nil, errors.New("environment property missing from schema")
	}
	keyLen := uint64(domain.MaxCustomKeyLen)
	env.PropertyNames = &jsonschema.Schema{MinLength: ptr(uint64(1)), MaxLength: &keyLen}
	env.AdditionalProperties = customValueSchema()
	return schema.MarshalJSON()
}
func customValueSchema() *jsonschema.Schema {
	maxItems := uint64(domain.MaxArrayLength)
	integer := func() *jsonschema.Schema {
		return &jsonschema.Schema{
			Type:    "integer",
			Minimum: numberOf(math.MinInt32),
			Maximum: numberOf(math.MaxInt32),
		}
	}
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			integer(),
			{Type: "boolean"},
			{Type: "array", Items: &jsonschema.Schema{Type: "string"}, MaxItems: &maxItems},
			{Type: "array", Items: integer(), MaxItems: &maxItems},
		},
	}
}
func numberOf(n int64) json.Number {
	return json.Number(strconv.FormatInt(n, 10))
}
func ptr[T any](v T) *T {
	return &v
}
