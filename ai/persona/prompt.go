package persona

import (
	"fmt"
	"strings"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/ai/llm"
)

// buildMessages renders a Request into the message list sent to the LLM.
// Other participants' display names are included verbatim so replies can
// address them by name.
func buildMessages(req *Request) []llm.Message {
	p := req.Persona

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, taking part in a live group conversation.\n", p.Name)
	if p.Bio != "" {
		fmt.Fprintf(&sb, "Background: %s\n", p.Bio)
	}
	if p.Positions != "" {
		fmt.Fprintf(&sb, "Your positions: %s\n", p.Positions)
	}
	if p.Style != "" {
		fmt.Fprintf(&sb, "Your speaking style: %s\n", p.Style)
	}
	if req.Topic != "" {
		fmt.Fprintf(&sb, "The conversation topic is: %s\n", req.Topic)
	}

	others := make([]string, 0, len(req.Participants))
	for _, name := range req.Participants {
		if name != p.Name {
			others = append(others, name)
		}
	}
	if len(others) > 0 {
		fmt.Fprintf(&sb, "The other participants are: %s. Address them by name when you engage with their points.\n", strings.Join(others, ", "))
	}

	if req.Knowledge != "" {
		fmt.Fprintf(&sb, "Background research about you, for grounding (do not quote verbatim):\n%s\n", req.Knowledge)
	}

	sb.WriteString("Stay in character. Speak naturally, as in a real conversation, not an essay. Do not prefix your reply with your own name.\n")
	if req.StyleHint != "" {
		sb.WriteString(req.StyleHint)
		sb.WriteString("\n")
	}
	if req.Locale != "" && req.Locale != "en" {
		fmt.Fprintf(&sb, "Respond in the language with BCP 47 tag %q.\n", req.Locale)
	}

	messages := []llm.Message{llm.SystemPrompt(sb.String())}
	for _, turn := range req.History {
		if !turn.FromUser && turn.SenderName == p.Name {
			messages = append(messages, llm.AssistantMessage(turn.Content))
			continue
		}
		// Other participants' turns are presented as attributed user turns so
		// the model keeps speakers apart.
		messages = append(messages, llm.UserMessage(fmt.Sprintf("%s: %s", turn.SenderName, turn.Content)))
	}
	return messages
}
