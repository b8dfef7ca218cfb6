// Package prompts embeds the prompt text used by the local diagnosis service.
package prompts

import _ "embed"

//go:embed diagnose/system.md
var DiagnoseSystemPrompt string

// DiagnoseInstruction opens every user prompt.
const DiagnoseInstruction = "You are an expert software engineer assisting with automated bug fixing. Respond only with valid JSON that follows the provided schema."
