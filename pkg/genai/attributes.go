// Package genai extracts generative-AI semantic-convention data from spans.
// Extraction is a pure, idempotent projection: running it twice on the same
// span yields the same result, and it never rewrites span attributes.
package genai

// GenAI semantic convention attribute keys (semconv 1.38).
const (
	AttrProviderName  = "gen_ai.provider.name"
	AttrOperationName = "gen_ai.operation.name"
	AttrRequestModel  = "gen_ai.request.model"
	AttrResponseModel = "gen_ai.response.model"
	AttrInputTokens   = "gen_ai.usage.input_tokens"
	AttrOutputTokens  = "gen_ai.usage.output_tokens"
	AttrTotalTokens   = "gen_ai.usage.total_tokens"
	AttrToolCallID    = "gen_ai.tool.call.id"
	AttrToolName      = "gen_ai.tool.name"
	AttrConversation  = "gen_ai.conversation.id"

	// AttrCostUSD is collector-specific: cost is attached by the emitting SDK,
	// never computed here.
	AttrCostUSD = "gen_ai.usage.cost_usd"

	// AttrSessionID groups spans into a conversation session.
	AttrSessionID = "session.id"
)

// Legacy (pre-1.39) attribute names, recognized for backward compatibility
// but never re-written onto spans.
const (
	LegacyAttrSystem           = "gen_ai.system"
	LegacyAttrPromptTokens     = "gen_ai.usage.prompt_tokens"
	LegacyAttrCompletionTokens = "gen_ai.usage.completion_tokens"
)
