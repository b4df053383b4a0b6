package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ExtractCaption reads choices[0].message.content from an inference result.
func ExtractCaption(raw json.RawMessage) (string, error) {
	var resp struct {
		Choices []struct {
			Message *struct {
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode inference result: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("inference result has no choices")
	}
	msg := resp.Choices[0].Message
	if msg == nil || len(msg.Content) == 0 || string(msg.Content) == "null" {
		return "", errors.New("first choice has no message content")
	}
	var caption string
	if err := json.Unmarshal(msg.Content, &caption); err != nil {
		return "", fmt.Errorf("message content is not a string: %w", err)
	}
	return caption, nil
}
