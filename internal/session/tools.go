package session

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"
)

// controlHomeAssistantTool is the one generic smart-home tool exposed to
// the model. A single, generic tool is kept instead of one tool per
// domain/service for reliability: it is far easier for the model to keep
// one call shape in mind than dozens of near-identical ones.
const controlHomeAssistantTool = "control_home_assistant"

// controlHomeAssistantSchema describes control_home_assistant's arguments,
// defined directly against jsonschema.Schema (rather than derived via
// reflection) since the argument shape is small, fixed, and never varies
// per call site.
func controlHomeAssistantSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"domain": {
				Type:        "string",
				Description: "Home Assistant domain, e.g. light, switch, cover, climate, lock, scene, script",
			},
			"service": {
				Type:        "string",
				Description: "Service name, e.g. turn_on, turn_off, toggle, set_temperature, open_cover",
			},
			"entity_id": {
				Type:        "string",
				Description: "Exact entity_id for the target device (preferred).",
			},
			"service_data_json": {
				Type: "string",
				Description: "Optional JSON object (as a string) with extra service fields, " +
					`e.g. {"brightness": 128} or {"temperature": 72}.`,
			},
		},
		Required: []string{"domain", "service"},
	}
}

// geminiConvSchema adapts a jsonschema.Schema into genai's own Schema type,
// the same field-by-field conversion the teacher's genx package performs
// before handing a schema to the Gemini API.
func geminiConvSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	enums := make([]string, 0, len(schema.Enum))
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}

	gs := &genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Enum:        enums,
		Items:       geminiConvSchema(schema.Items),
		Required:    schema.Required,
	}

	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = geminiConvSchema(prop)
		}
	}

	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return gs
}

// buildTools returns the single-tool list handed to LiveConnectConfig.
func buildTools() []*genai.Tool {
	return []*genai.Tool{
		{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				{
					Name: controlHomeAssistantTool,
					Description: "Call a Home Assistant service to control devices. " +
						"Prefer entity_id from the provided device list.",
					Parameters: geminiConvSchema(controlHomeAssistantSchema()),
				},
			},
		},
	}
}
