package router

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cast"
)

// idMentionRe matches user, role and channel mentions.
var idMentionRe = regexp.MustCompile(`^<(?:@!?|@&|#)(\d+)>$`)

// parseArgs maps whitespace tokens onto options in order. A final STRING
// option takes the untouched remainder of the line. Missing optional
// options are left out of the map.
func parseArgs(opts []*discordgo.ApplicationCommandOption, rest string) (map[string]any, error) {
	args := make(map[string]any, len(opts))
	remaining := rest
	for i, opt := range opts {
		remaining = strings.TrimLeftFunc(remaining, unicode.IsSpace)
		if remaining == "" {
			if opt.Required {
				return nil, fmt.Errorf("%w: %s", ErrMissingOption, opt.Name)
			}
			continue
		}

		var token string
		if i == len(opts)-1 && opt.Type == discordgo.ApplicationCommandOptionString {
			token = strings.TrimRightFunc(remaining, unicode.IsSpace)
			remaining = ""
		} else {
			token, remaining = nextToken(remaining)
		}
		args[opt.Name] = coerce(opt.Type, token)
	}
	return args, nil
}

func nextToken(s string) (token, rest string) {
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

// coerce converts a raw token to the option's type. Numbers that fail to
// parse become NaN; unknown types pass through as strings.
func coerce(typ discordgo.ApplicationCommandOptionType, token string) any {
	switch typ {
	case discordgo.ApplicationCommandOptionUser,
		discordgo.ApplicationCommandOptionMentionable,
		discordgo.ApplicationCommandOptionRole,
		discordgo.ApplicationCommandOptionChannel:
		// Bare numeric IDs pass through unchanged.
		if m := idMentionRe.FindStringSubmatch(token); m != nil {
			return m[1]
		}
		return token
	case discordgo.ApplicationCommandOptionInteger:
		f, err := cast.ToFloat64E(token)
		if err != nil {
			return math.NaN()
		}
		return math.Trunc(f)
	case discordgo.ApplicationCommandOptionNumber:
		f, err := cast.ToFloat64E(token)
		if err != nil {
			return math.NaN()
		}
		return f
	case discordgo.ApplicationCommandOptionBoolean:
		switch strings.ToLower(token) {
		case "true", "1", "yes":
			return true
		}
		return false
	}
	return token
}
