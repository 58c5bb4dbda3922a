// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import "golang.org/x/text/unicode/norm"

// normalizeTitle returns title normalized to Unicode NFC, the same
// normalization cmd/qrank-builder/util.go's formatLine applies before
// using a title as a sort/lookup key. Unlike formatLine, no case
// folding is applied here: this module displays titles verbatim
// (modulo canonicalizing combining-character sequences coming from
// differently-precomposed dump sources), it does not use a title as a
// case-insensitive join key the way the teacher's sitelinks build
// does. The underlying wikitext bytes handed to the regex engine are
// never touched by this function, only the title surfaced in C3's
// header line.
func normalizeTitle(title string) string {
	return norm.NFC.String(title)
}
