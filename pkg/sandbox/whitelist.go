// Package sandbox executes a whitelisted set of read-only programs inside a
// repository's files root, bounded by timeout, output size and a global
// concurrency permit.
//
// The whitelist plus argument filter defends against shell injection and
// trivial path escape; it is not a kernel-level sandbox. Deployments facing
// hostile tenants need OS-level isolation on top.
package sandbox

import (
	"strings"

	"github.com/stashfs/stashfs/internal/apperr"
)

// allowedCommands is the fixed set of read-only programs the exec endpoint
// may run.
var allowedCommands = map[string]struct{}{
	"rg": {}, "grep": {}, "head": {}, "tail": {}, "cat": {}, "wc": {},
	"find": {}, "ls": {}, "sort": {}, "uniq": {}, "sed": {}, "awk": {},
	"tr": {}, "cut": {}, "diff": {}, "file": {}, "stat": {}, "du": {},
	"tree": {},
}

// Allowed reports whether command is on the whitelist.
func Allowed(command string) bool {
	_, ok := allowedCommands[command]
	return ok
}

// forbiddenRunes are shell metacharacters rejected in every argument.
var forbiddenRunes = []rune{'|', ';', '`', '$', '&', '\n', '\r'}

// ValidateArgs rejects arguments that could enable shell injection or path
// traversal. Commands are executed directly (no shell), so this is a second
// line of defense.
func ValidateArgs(args []string) error {
	for _, arg := range args {
		if strings.Contains(arg, "..") {
			return apperr.Forbiddenf("Path traversal in arguments not allowed")
		}
		for _, r := range forbiddenRunes {
			if strings.ContainsRune(arg, r) {
				return apperr.Forbiddenf("Shell metacharacter %q not allowed in arguments", string(r))
			}
		}
		if strings.Contains(arg, "$(") {
			return apperr.Forbiddenf("Command substitution not allowed in arguments")
		}
	}
	return nil
}
