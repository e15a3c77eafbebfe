package actions

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed api-schema.yaml
var apiSchema []byte

const schemaURL = "api-schema.json"

// schema components of requests
const (
	componentSystem        = "System"
	componentStatusRequest = "StatusRequest"
	componentDeleteRequest = "DeleteRequest"
	componentModifyRequest = "ModifyRequest"
)

// compileSchemas compiles request schemas in api-schema.yaml.
func compileSchemas() (map[string]*jsonschema.Schema, error) {
	doc := map[string]any{}
	if err := yaml.Unmarshal(apiSchema, &doc); err != nil {
		return nil, err
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(asJSON)); err != nil {
		return nil, err
	}

	schemas := map[string]*jsonschema.Schema{}
	for _, component := range []string{
		componentSystem, componentStatusRequest, componentDeleteRequest, componentModifyRequest,
	} {
		s, err := c.Compile(fmt.Sprintf("%s#/components/schemas/%s", schemaURL, component))
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", component, err)
		}
		schemas[component] = s
	}
	return schemas, nil
}
