package router

import (
	"sort"
	"strings"

	kit "doorbot/internal/transport"
)

// sanitizeCommand maps a name onto Telegram's [a-z0-9_]{1,32} command set.
func sanitizeCommand(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == ' ':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

// buildMenu lists commands for setMyCommands: public commands first, then
// owner-only ones, alphabetical within each group. Aliases are left out.
func buildMenu(cmds []Command) []kit.BotCommand {
	sorted := append([]Command(nil), cmds...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Access != sorted[j].Access {
			return sorted[i].Access < sorted[j].Access
		}
		return sorted[i].Name < sorted[j].Name
	})
	seen := map[string]bool{}
	out := make([]kit.BotCommand, 0, len(sorted))
	for _, c := range sorted {
		if c.Hidden {
			continue
		}
		name := sanitizeCommand(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = name
		}
		if c.Access == AccessOwnerOnly {
			desc = "(owner) " + desc
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
		if len(out) >= 100 {
			break
		}
	}
	return out
}
