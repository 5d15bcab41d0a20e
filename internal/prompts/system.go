package prompts

// System is the directive prepended to every conversation sent to the
// completion provider.
const System = `You are a helpful AI assistant with access to a knowledge base.
You can search the knowledge base to answer questions accurately.
When users ask questions, use the search_kb tool to find relevant information.
Always provide clear, accurate answers based on the knowledge base content.
If information is not in the knowledge base, say so clearly.`

// IterationExhaustedFallback is the user-facing message persisted when
// the agent loop hits its iteration cap without producing a final
// answer. Reaching the cap is graceful degradation, not a failure.
const IterationExhaustedFallback = "I apologize, but I encountered an issue processing your request. Please try again."
