// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

// Command wikidumpgrep searches Wikimedia XML dump files for a regular
// expression and prints matching lines with colorized, grep-style
// output. It is the thin CLI wiring around the wikidumpgrep package's
// search engine, following this teacher repo's own pattern of a small
// cmd/<tool>/main.go that parses flags, sets up a logger, and calls
// into the library for the real work; the flag surface itself mirrors
// the original wdgrep binary's.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/wikidumpgrep/wikidumpgrep"
)

func main() {
	log.SetFlags(0)
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("wikidumpgrep", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: wikidumpgrep [flags] <search term> <dump file or prefix>\n\n")
		fs.PrintDefaults()
	}

	var (
		namespaces   = fs.String("ns", "", "restrict search to these namespaces (comma-separated list of numeric namespaces)")
		verbose      = fs.Bool("v", false, "print performance statistics")
		verboseLong  = fs.Bool("verbose", false, "print performance statistics")
		onlyTitles   = fs.Bool("l", false, "only list title and revision of articles containing matching text")
		onlyTitlesLo = fs.Bool("revisions-with-matches", false, "only list title and revision of articles containing matching text")
		threads      = fs.Int("j", 0, "number of parallel threads to use; default is the number of logical cpus")
		threadsLong  = fs.Int("threads", 0, "number of parallel threads to use; default is the number of logical cpus")
		color        = fs.String("color", "auto", `colorize output: "always", "auto", or "never"`)
		bin7z        = fs.String("7z-binary", "7z", "binary for extracting text from .7z files")
		opts7z       = fs.String("7z-options", "e -so", "options passed to the 7z binary")
		binBzcat     = fs.String("bzcat-binary", "bzcat", "binary for extracting text from .bz2 files")
		optsBzcat    = fs.String("bzcat-options", "", "options passed to the bzcat binary")
		sortOutput   = fs.Bool("sort", false, "sort output deterministically by title@revision instead of worker-arrival order")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return 2
	}
	pattern := fs.Arg(0)
	dumpFileOrPrefix := fs.Arg(1)

	colorChoice, err := parseColorChoice(*color)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	threadCount := 0
	if *threads > 0 {
		threadCount = *threads
	}
	if *threadsLong > 0 {
		threadCount = *threadsLong
	}

	logger := log.New(os.Stderr, "", 0)

	ctx := context.Background()
	files, totalSize, err := wikidumpgrep.ResolveDumpFiles(ctx, dumpFileOrPrefix, nil)
	if err != nil {
		logger.Printf("error: %v", err)
		return 1
	}

	searchOpts := wikidumpgrep.NewSearchOptions().
		WithOnlyPrintTitleAndRevision(*onlyTitles || *onlyTitlesLo).
		WithColorChoice(colorChoice).
		WithBinary7z(*bin7z).
		WithOptions7z(splitOptions(*opts7z)).
		WithBinaryBzcat(*binBzcat).
		WithOptionsBzcat(splitOptions(*optsBzcat)).
		WithSortOutput(*sortOutput).
		WithLogger(logger)
	if threadCount > 0 {
		searchOpts = searchOpts.WithThreadCount(threadCount)
	}
	if ns := parseNamespaces(*namespaces); ns != nil {
		searchOpts = searchOpts.WithRestrictNamespaces(ns)
	}

	start := time.Now()
	result, err := wikidumpgrep.SearchDump(ctx, pattern, files, os.Stdout, searchOpts)
	if err != nil {
		logger.Printf("error: %v", err)
		return 1
	}

	if *verbose || *verboseLong {
		elapsed := time.Since(start).Seconds()
		mbPerSec := float64(result.BytesProcessed) / (1024 * 1024) / elapsed
		logger.Printf("searched %d file(s), %d bytes total, %d bytes processed in %.1fs (%.1f MiB/s)",
			len(files), totalSize, result.BytesProcessed, elapsed, mbPerSec)
		if result.CompressedFilesFound {
			logger.Printf("note: compressed dump files were found; decompression cost is included above")
		}
	}

	return 0
}

func parseColorChoice(s string) (wikidumpgrep.ColorChoice, error) {
	switch s {
	case "always":
		return wikidumpgrep.ColorAlways, nil
	case "never":
		return wikidumpgrep.ColorNever, nil
	case "auto":
		return wikidumpgrep.ColorAuto, nil
	default:
		return 0, fmt.Errorf(`invalid --color value %q: must be "always", "auto", or "never"`, s)
	}
}

// parseNamespaces splits a comma-separated namespace list, returning
// nil (no filter) for an empty string, following SPEC_FULL.md's Open
// Question decision that an absent or empty --ns means "no filter".
func parseNamespaces(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// splitOptions splits a whitespace-separated option string into argv
// words, the Go analogue of shlex-ing the "-7z-options"/"-bzcat-options"
// flag values the way the original tool passes them through to exec.
func splitOptions(s string) []string {
	return strings.Fields(s)
}
