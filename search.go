// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"regexp"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// SearchOptions configures a call to SearchDump. It follows the
// builder style of the original tool's SearchOptions (chainable
// With* setters returning *SearchOptions), and of this teacher
// repo's own flag-parsing-into-struct convention.
type SearchOptions struct {
	restrictNamespaces map[string]bool
	onlyTitleAndRev    bool
	threadCount        int
	binary7zVal        string
	options7zVal       []string
	binaryBzcatVal     string
	optionsBzcatVal    []string
	colorChoice        ColorChoice
	sortOutput         bool
	metrics            *Metrics
	storage            *StorageSource
	logger             *log.Logger
}

// NewSearchOptions returns a SearchOptions with the same defaults as
// the original tool: no namespace filter, full line output, CPU-count
// threads, "7z e -so" / "bzcat", colors off.
func NewSearchOptions() *SearchOptions {
	return &SearchOptions{
		threadCount:     runtime.NumCPU(),
		binary7zVal:     "7z",
		options7zVal:    []string{"e", "-so"},
		binaryBzcatVal:  "bzcat",
		optionsBzcatVal: nil,
		colorChoice:     ColorNever,
		logger:          log.Default(),
	}
}

// WithRestrictNamespaces limits the search to the given namespace
// numbers. An empty or nil slice means no filter (every namespace is
// searched), matching pageextractor.go's namespaceOK :=
// restrictNamespaces == nil check: a non-nil empty map would instead
// reject every page, since no namespace could ever be found in it.
func (o *SearchOptions) WithRestrictNamespaces(namespaces []string) *SearchOptions {
	if len(namespaces) == 0 {
		o.restrictNamespaces = nil
		return o
	}
	set := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		set[ns] = true
	}
	o.restrictNamespaces = set
	return o
}

func (o *SearchOptions) WithOnlyPrintTitleAndRevision(v bool) *SearchOptions {
	o.onlyTitleAndRev = v
	return o
}

func (o *SearchOptions) WithThreadCount(n int) *SearchOptions {
	if n > 0 {
		o.threadCount = n
	}
	return o
}

func (o *SearchOptions) WithBinary7z(bin string) *SearchOptions {
	o.binary7zVal = bin
	return o
}

func (o *SearchOptions) WithOptions7z(args []string) *SearchOptions {
	o.options7zVal = args
	return o
}

func (o *SearchOptions) WithBinaryBzcat(bin string) *SearchOptions {
	o.binaryBzcatVal = bin
	return o
}

func (o *SearchOptions) WithOptionsBzcat(args []string) *SearchOptions {
	o.optionsBzcatVal = args
	return o
}

func (o *SearchOptions) WithColorChoice(c ColorChoice) *SearchOptions {
	o.colorChoice = c
	return o
}

// WithSortOutput enables the deterministic sorted-output stage (C10).
func (o *SearchOptions) WithSortOutput(v bool) *SearchOptions {
	o.sortOutput = v
	return o
}

// WithMetrics attaches a Prometheus-backed instrument registry (C11).
func (o *SearchOptions) WithMetrics(m *Metrics) *SearchOptions {
	o.metrics = m
	return o
}

// WithStorage attaches an object-storage source (C12) used both by
// the resolver and by the driver to read dump files that live in
// S3-compatible storage rather than the local filesystem.
func (o *SearchOptions) WithStorage(s *StorageSource) *SearchOptions {
	o.storage = s
	return o
}

// WithLogger overrides the logger used for diagnostic messages.
// Defaults to log.Default().
func (o *SearchOptions) WithLogger(l *log.Logger) *SearchOptions {
	if l != nil {
		o.logger = l
	}
	return o
}

func (o *SearchOptions) binary7z() string       { return o.binary7zVal }
func (o *SearchOptions) options7z() []string    { return o.options7zVal }
func (o *SearchOptions) binaryBzcat() string    { return o.binaryBzcatVal }
func (o *SearchOptions) optionsBzcat() []string { return o.optionsBzcatVal }

// SearchResult aggregates the outcome of a call to SearchDump.
type SearchResult struct {
	BytesProcessed       int64
	CompressedFilesFound bool
}

// workItem is one (file, range) pair submitted to the worker pool.
type workItem struct {
	file DumpFile
	rng  workRange
}

// revisionSink receives one revision's already-formatted output block.
// The default sink (syncWriter) writes straight through to stdout; the
// sorted-output stage (C10) buffers and reorders instead.
type revisionSink interface {
	WriteRevision(title, revisionID string, block []byte) error
}

// syncWriter serializes concurrent WriteRevision calls from multiple
// workers into a single underlying writer, one write call per
// revision block, so output from different workers is never
// interleaved mid-line.
type syncWriter struct {
	w  io.Writer
	mu sync.Mutex
}

func (s *syncWriter) WriteRevision(_, _ string, block []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(block); err != nil {
		return wrapErr(KindIO, err)
	}
	return nil
}

// SearchDump runs regex across every resolved dump file, writing
// colorized matches to w. It mirrors search_dump from the original
// tool: plain files are split into byte-range partitions searched in
// parallel; compressed files are streamed whole through a
// decompressor. The worker pool is a fixed-size errgroup.Group
// (SetLimit to opts.threadCount), the same primitive this teacher
// repo uses for every parallel pipeline stage.
func SearchDump(ctx context.Context, pattern string, files []DumpFile, w io.Writer, opts *SearchOptions) (SearchResult, error) {
	if opts == nil {
		opts = NewSearchOptions()
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return SearchResult{}, wrapErr(KindRegex, err)
	}

	effectiveColor := opts.colorChoice
	if effectiveColor == ColorAuto {
		if isTerminalWriter(w) {
			effectiveColor = ColorAlways
		} else {
			effectiveColor = ColorNever
		}
	}
	formatter := newMatchFormatter(effectiveColor)

	var bytesProcessed int64
	var compressedFound int32

	bufOut := bufio.NewWriterSize(w, 1<<20)
	out := &syncWriter{w: bufOut}

	items := buildWorkItems(files)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.threadCount)

	var sorter *sortedOutputStage
	var sink revisionSink = out
	if opts.sortOutput {
		// gctx is canceled as soon as g.Wait returns, before Flush runs,
		// so the sort gets its own context that ends with this call.
		sortCtx, cancelSort := context.WithCancel(ctx)
		defer cancelSort()
		sorter = newSortedOutputStage(sortCtx)
		sink = sorter
	}

	workCh := make(chan workItem, len(items))
	for _, it := range items {
		workCh <- it
	}
	close(workCh)

	for i := 0; i < opts.threadCount; i++ {
		g.Go(func() error {
			for item := range workCh {
				n, compressed, err := searchOne(gctx, re, item, formatter, sink, opts)
				if err != nil {
					return err
				}
				atomic.AddInt64(&bytesProcessed, n)
				if compressed {
					atomic.StoreInt32(&compressedFound, 1)
				}
				if opts.metrics != nil {
					opts.metrics.BytesProcessed.Add(float64(n))
					opts.metrics.FilesSearched.Inc()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return SearchResult{}, err
	}

	if sorter != nil {
		if err := sorter.Flush(gctx, out); err != nil {
			return SearchResult{}, err
		}
	}
	if err := bufOut.Flush(); err != nil {
		return SearchResult{}, wrapErr(KindIO, err)
	}

	return SearchResult{
		BytesProcessed:       atomic.LoadInt64(&bytesProcessed),
		CompressedFilesFound: compressedFound == 1,
	}, nil
}

func buildWorkItems(files []DumpFile) []workItem {
	var items []workItem
	for _, f := range files {
		if f.Flavor == flavorPlain {
			for _, r := range partitionFile(f.Size) {
				items = append(items, workItem{file: f, rng: r})
			}
		} else {
			items = append(items, workItem{file: f, rng: streamingRange()})
		}
	}
	return items
}

// searchOne processes one (file, range) work item end to end: open
// (local or via C12 storage), decompress if needed, tokenize, extract
// revisions, and format matches into sink. It returns the number of
// uncompressed bytes it examined and whether the file was compressed.
func searchOne(ctx context.Context, re *regexp.Regexp, item workItem, formatter *matchFormatter, sink revisionSink, opts *SearchOptions) (int64, bool, error) {
	localPath := item.file.Path
	var cleanup func()
	if item.file.Storage != nil {
		local, done, err := item.file.Storage.fetchLocal(ctx, item.file.Path)
		if err != nil {
			return 0, false, err
		}
		localPath = local
		cleanup = done
	}
	if cleanup != nil {
		defer cleanup()
	}

	if item.file.Flavor == flavorPlain {
		return searchPlainRange(re, localPath, item.rng, formatter, sink, opts)
	}
	return searchCompressed(ctx, re, localPath, item.file.Flavor, formatter, sink, opts)
}

func searchPlainRange(re *regexp.Regexp, path string, rng workRange, formatter *matchFormatter, sink revisionSink, opts *SearchOptions) (int64, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, wrapErr(KindIO, err)
	}
	defer f.Close()
	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		return 0, false, wrapErr(KindIO, err)
	}
	br := bufio.NewReaderSize(f, 2*1024*1024)
	n, err := runExtraction(br, rng.Start, rng.End, re, formatter, sink, opts)
	return n, false, err
}

func searchCompressed(ctx context.Context, re *regexp.Regexp, path string, flavor compressionFlavor, formatter *matchFormatter, sink revisionSink, opts *SearchOptions) (int64, bool, error) {
	src, err := openCompressed(ctx, path, flavor, opts)
	if err != nil {
		recordDecompressFailure(opts)
		return 0, false, err
	}
	br := bufio.NewReaderSize(src, 2*1024*1024)
	n, err := runExtraction(br, 0, int64(^uint64(0)>>1), re, formatter, sink, opts)
	if closeErr := src.Close(); closeErr != nil {
		recordDecompressFailure(opts)
		if err == nil {
			err = closeErr
		}
	}
	isCompressed := flavor != flavorPlain
	return n, isCompressed, err
}

// recordDecompressFailure increments the C11 decompressor-failure
// counter, alongside search.go's other relaxed atomics, whenever
// opts.metrics is non-nil.
func recordDecompressFailure(opts *SearchOptions) {
	if opts.metrics != nil {
		opts.metrics.DecompressFailure.Inc()
	}
}

// runExtraction drives the xmlReader/pageExtractor/matchFormatter
// pipeline over br, honoring the [start, end) ownership rule from
// partition.go: a page belongs to this range only if its opening
// <page> byte offset (start + buffer position - len("<page>")) is
// strictly before end.
func runExtraction(br *bufio.Reader, start, end int64, re *regexp.Regexp, formatter *matchFormatter, sink revisionSink, opts *SearchOptions) (int64, error) {
	x := newXMLReader(br)
	extractor := newPageExtractor(x, opts.restrictNamespaces)

	for {
		relOffset, ok, err := extractor.NextPageOffset()
		if err != nil {
			return x.BufferPosition(), err
		}
		if !ok {
			break
		}
		absOffset := start + relOffset
		if absOffset >= end {
			break
		}
		if err := extractor.ReadPage(); err != nil {
			return x.BufferPosition(), err
		}
		for {
			rec, ok := extractor.Next()
			if !ok {
				break
			}
			var buf bytes.Buffer
			if opts.onlyTitleAndRev {
				formatter.WriteTitleOnly(&buf, rec.Title, rec.RevisionID, rec.Text, re)
			} else {
				formatter.WriteMatches(&buf, rec.Title, rec.RevisionID, rec.Text, re)
			}
			if buf.Len() > 0 {
				if opts.metrics != nil {
					opts.metrics.MatchesFound.Inc()
				}
				if err := sink.WriteRevision(rec.Title, rec.RevisionID, buf.Bytes()); err != nil {
					return x.BufferPosition(), err
				}
			}
		}
	}
	return x.BufferPosition(), nil
}

// isTerminalWriter reports whether w is connected to a terminal, used
// to resolve ColorAuto.
func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isTerminalFd(f.Fd())
}
