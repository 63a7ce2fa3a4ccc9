package safety

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CheckCommand implements check_command(command, cwd) → Ok | Deny(reason).
// Defense in depth only — the agent's own system prompt carries the
// primary policy; this is the last line of enforcement before a Bash tool
// call reaches the host shell.
func (k *Kernel) CheckCommand(command, cwd string) (ok bool, reason string) {
	for _, pattern := range k.policy.BlockedPatterns {
		if strings.Contains(command, pattern) {
			return false, fmt.Sprintf("matched blocked pattern %q", pattern)
		}
	}

	tokens := tokenizeCommand(command)
	if len(tokens) == 0 {
		return true, ""
	}
	if tokens[0] != "rm" {
		return true, ""
	}

	for _, arg := range tokens[1:] {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		resolved := arg
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(cwd, resolved)
		}
		if !k.IsPathAllowed(resolved) {
			return false, fmt.Sprintf("rm argument %q is outside allowed paths", arg)
		}
	}
	return true, ""
}

// tokenizeCommand splits a shell command into tokens, skipping leading
// whitespace and any leading VAR=value environment assignments, so that
// `FOO=bar rm file` and `  rm file` both identify "rm" as the first token.
func tokenizeCommand(command string) []string {
	fields := strings.Fields(command)
	i := 0
	for i < len(fields) && isEnvAssignment(fields[i]) {
		i++
	}
	return fields[i:]
}

func isEnvAssignment(token string) bool {
	eq := strings.IndexByte(token, '=')
	if eq <= 0 {
		return false
	}
	name := token[:eq]
	for i, r := range name {
		if r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}
