package session

import (
	"strings"
	"testing"
)

func TestBuildTools(t *testing.T) {
	tools := buildTools()
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	funcs := tools[0].FunctionDeclarations
	if len(funcs) != 1 {
		t.Fatalf("expected 1 function declaration, got %d", len(funcs))
	}
	if funcs[0].Name != controlHomeAssistantTool {
		t.Fatalf("unexpected tool name: %q", funcs[0].Name)
	}

	props := funcs[0].Parameters.Properties
	for _, key := range []string{"domain", "service", "entity_id", "service_data_json"} {
		if _, ok := props[key]; !ok {
			t.Fatalf("expected property %q in schema", key)
		}
	}

	required := funcs[0].Parameters.Required
	if len(required) != 2 || required[0] != "domain" || required[1] != "service" {
		t.Fatalf("unexpected required fields: %v", required)
	}
}

func TestBuildSystemPromptIncludesDeviceList(t *testing.T) {
	prompt := buildSystemPrompt([]string{"- Light One (light.one) = on"})
	if !strings.Contains(prompt, "control_home_assistant") {
		t.Fatal("expected prompt to mention the tool name")
	}
	if !strings.Contains(prompt, "- Light One (light.one) = on") {
		t.Fatal("expected prompt to include the device line")
	}
}
