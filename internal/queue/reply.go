package queue

import "github.com/bwmarrin/discordgo"

// extractReplyID finds the sent message ID in whatever the transport
// returned: a direct ID first, then message.id, then body.id.
func extractReplyID(reply any) string {
	switch r := reply.(type) {
	case nil:
		return ""
	case *discordgo.Message:
		if r == nil {
			return ""
		}
		return r.ID
	case interface{ MessageID() string }:
		return r.MessageID()
	case map[string]any:
		if id := stringField(r, "id"); id != "" {
			return id
		}
		for _, nested := range []string{"message", "body"} {
			if m, ok := r[nested].(map[string]any); ok {
				if id := stringField(m, "id"); id != "" {
					return id
				}
			}
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
