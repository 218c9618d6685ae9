package service

import "strings"

// Render substitutes {name} placeholders in a message template. Unknown
// placeholders are left untouched so a template typo is visible rather than
// silently dropped.
func Render(format string, vars map[string]string) string {
	if len(vars) == 0 {
		return format
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(format)
}
