// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import "golang.org/x/term"

// isTerminalFd reports whether fd refers to a terminal, resolving
// ColorAuto the way the original tool's atty check did. Using
// golang.org/x/term here extends the golang.org/x/ family this module
// already depends on (x/sync, x/text) rather than adding an unrelated
// terminal-capability library.
func isTerminalFd(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
