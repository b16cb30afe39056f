package domain

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the role/content pair exchanged between the chat page and
// the chat endpoint.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages   []ChatMessage `json:"messages"`
	StageIndex int           `json:"stageIndex"`
}

// ChatResponse is the body returned by POST /api/chat.
type ChatResponse struct {
	Message     ChatMessage `json:"message"`
	StageIndex  int         `json:"stageIndex"`
	Suggestions []string    `json:"suggestions"`
}
