package llm

import (
	"context"
	"encoding/json"

	"github.com/joseph-ayodele/exam-grader/internal/common"
)

// Message is one chat/completions message. Content is either a plain string
// or a list of parts for vision requests.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is a typed element of a multi-part message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

func SystemMessage(text string) Message { return Message{Role: "system", Content: text} }

func UserMessage(text string) Message { return Message{Role: "user", Content: text} }

// VisionMessage is a single user turn carrying an instruction and one image.
func VisionMessage(prompt, imageDataURL string) Message {
	return Message{
		Role: "user",
		Content: []ContentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &ImageURL{URL: imageDataURL}},
		},
	}
}

// Completer sends a conversation to a chat model and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, messages []Message) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// ChatCompletion is the subset of the chat/completions reply we read.
type ChatCompletion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

// DecodeChatCompletion pulls choices[0].message.content out of a reply body.
func DecodeChatCompletion(raw []byte) (string, *ChatCompletion, error) {
	var cc ChatCompletion
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", nil, &MalformedReplyError{Reason: "decode chat completion: " + err.Error(), Body: string(raw)}
	}
	if len(cc.Choices) == 0 {
		return "", &cc, &MalformedReplyError{Reason: "no choices in response", Body: string(raw)}
	}
	return cc.Choices[0].Message.Content, &cc, nil
}

// MalformedReplyError is a 200 response whose envelope could not be read.
type MalformedReplyError struct {
	Reason string
	Body   string
}

func (e *MalformedReplyError) Error() string { return e.Reason }

func (e *MalformedReplyError) Unwrap() error { return common.ErrUpstream }
