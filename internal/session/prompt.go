package session

import "strings"

// buildSystemPrompt renders the system instruction for a Gemini Live
// session, injecting the filtered device list. Kept tight: in realtime
// voice, prompt bloat is latency bloat.
func buildSystemPrompt(entityLines []string) string {
	var b strings.Builder
	b.WriteString("You are a voice-first smart home assistant running inside Home Assistant.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Be concise in speech.\n")
	b.WriteString("- When you need to control the smart home, call the tool `control_home_assistant`.\n")
	b.WriteString("- Always use an entity_id from the device list below; do NOT invent entity_ids.\n")
	b.WriteString("- If you cannot find a matching device, ask a short clarifying question or say you can't find it.\n")
	b.WriteString("- Confirm actions briefly after tool success.\n\n")
	b.WriteString("Device list (name, entity_id, state):\n")
	b.WriteString(strings.Join(entityLines, "\n"))
	b.WriteString("\n")
	return b.String()
}
