// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the instruments SearchDump updates as it runs (C11).
// Exposition (an HTTP /metrics handler) is left to the embedding CLI
// or service, following this teacher's own split between the metrics
// it registers in cmd/qrank-webserver/main.go and the computation code
// that updates them.
type Metrics struct {
	BytesProcessed    prometheus.Counter
	FilesSearched     prometheus.Counter
	MatchesFound      prometheus.Counter
	DecompressFailure prometheus.Counter
}

// NewMetrics registers a fresh set of instruments on reg and returns
// them bundled as a *Metrics.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		BytesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikidumpgrep_bytes_processed_total",
			Help: "Uncompressed bytes scanned across all searched dump files.",
		}),
		FilesSearched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikidumpgrep_files_searched_total",
			Help: "Number of (file, partition) work items completed.",
		}),
		MatchesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikidumpgrep_matches_found_total",
			Help: "Number of revisions with at least one regex match.",
		}),
		DecompressFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikidumpgrep_decompress_failures_total",
			Help: "Number of compressed dump files whose decompressor failed to open or reported an error on close.",
		}),
	}
	reg.MustRegister(m.BytesProcessed, m.FilesSearched, m.MatchesFound, m.DecompressFailure)
	return m
}
