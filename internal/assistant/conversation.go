package assistant

import (
	"fmt"
	"strings"
)

const unknownResponse = "I'm not sure I understand. Can you rephrase that or ask me something specific?"

var greetings = []string{"hi", "hello", "hey", "greetings"}

// converse answers an utterance that matched no command category.
func converse(profileName, utterance string) string {
	text := strings.ToLower(utterance)

	for _, g := range greetings {
		if containsWord(text, g) {
			if profileName == "" {
				return "Hello! How may I assist you today?"
			}
			return fmt.Sprintf("Hello, %s! How may I assist you today?", profileName)
		}
	}

	switch {
	case strings.Contains(text, "how are you"):
		return "I'm functioning at optimal parameters, thank you for asking. How may I assist you?"
	case strings.Contains(text, "thank"):
		return "You're welcome! Is there anything else you need help with?"
	case strings.Contains(text, "your name"):
		return "I am J.A.R.V.I.S., Just A Rather Very Intelligent System. How may I assist you today?"
	case strings.Contains(text, "what can you do"):
		return HelpText
	}
	return unknownResponse
}
