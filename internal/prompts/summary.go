package prompts

import "fmt"

// summarySystem instructs the model for a from-scratch conversation
// summary. Sent as the system message; the conversation text follows
// as the user message.
const summarySystem = `Summarize the following conversation history concisely while preserving ALL critical information.

MUST preserve:
- User's name, role, preferences, and any personal details mentioned
- Specific facts, data, numbers, and technical details discussed
- Key decisions, conclusions, and action items
- Important context needed to continue the conversation naturally

Focus on: main topics discussed, important questions asked, key information provided, unresolved issues.
Keep it under 200 words but prioritize completeness over brevity.`

// incrementalTemplate merges new messages into a prior summary. The two
// format verbs receive the previous summary and the new message text.
const incrementalTemplate = `You are given a previous conversation summary and new messages that followed.
Create an updated summary that:

MUST preserve from previous summary:
- User's name and any personal details
- Important facts, numbers, and technical details
- Key context needed for conversation continuity

From new messages, add:
- Any NEW personal information (name, preferences, etc.)
- New facts, decisions, or important details
- Updated context or changes to previous information

Remove only:
- Superseded or corrected information
- Redundant details already captured

Keep under 200 words but prioritize important details over brevity.

Previous summary:
%s

New messages:
%s

Provide the updated summary:`

// SummarySystem returns the system message for full summarization.
func SummarySystem() string {
	return summarySystem
}

// SummaryUser wraps the conversation text as the user message for full
// summarization.
func SummaryUser(conversationText string) string {
	return fmt.Sprintf("Conversation to summarize:\n%s", conversationText)
}

// IncrementalSummary returns the single-message incremental prompt.
func IncrementalSummary(previousSummary, newMessages string) string {
	return fmt.Sprintf(incrementalTemplate, previousSummary, newMessages)
}
