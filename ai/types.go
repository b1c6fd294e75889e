package ai

import "characterchat/backend/internal/models"

// ChatMessage is one entry of a chat completion request.
type ChatMessage struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// streamChunk is the subset of an OpenAI-style streaming chunk we read.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// apiErrorResponse is the error envelope returned by the gateway.
type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}
