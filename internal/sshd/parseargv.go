package sshd

import (
	"fmt"
	"strings"
)

// parseCommand splits a raw subsystem command line into arguments,
// honoring single-quoted segments the way Git's own SSH clients quote
// the repository path (spec §6.2: "git-upload-pack '<path>'"),
// grounded on pkg/serve/sshserver/parseargv.go's argv tokenizer.
func parseCommand(raw string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inQuote := false
	hasToken := false

	flush := func() {
		if hasToken {
			args = append(args, cur.String())
			cur.Reset()
			hasToken = false
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			hasToken = true
		case c == ' ' && !inQuote:
			flush()
		default:
			cur.WriteByte(c)
			hasToken = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("sshd: unterminated quote in command %q", raw)
	}
	flush()
	return args, nil
}
