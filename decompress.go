// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// compressionFlavor identifies how a DumpFile's bytes must be decoded
// before the XML reader can see them. Plain files have no decoder at
// all. bzip2 and sevenZip are decoded by an external subprocess in the
// original tool's manner; the remaining flavors are the DOMAIN STACK
// supplement, decoded in-process.
type compressionFlavor int

const (
	flavorPlain compressionFlavor = iota
	flavorBzip2
	flavorSevenZip
	flavorGzip
	flavorXz
	flavorZstd
	flavorBrotli
)

// decompressorSource opens a streaming, unseekable octet source for a
// compressed dump file. Close must be called exactly once; for an
// external decompressor it reports a non-zero exit. Decode errors of
// the in-process decoders surface from Read, not from Close.
type decompressorSource struct {
	io.Reader
	closeFn func() error
}

func (d *decompressorSource) Close() error {
	if d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// openCompressed returns a decompressorSource for the given file and
// flavor, honoring the configured external binaries for bzip2/7z and
// falling back to in-process decoding (bzip2 only, when the configured
// binary cannot be found) per SPEC_FULL.md §4.5.
func openCompressed(ctx context.Context, path string, flavor compressionFlavor, opts *SearchOptions) (*decompressorSource, error) {
	switch flavor {
	case flavorSevenZip:
		return spawnDecompressor(ctx, opts.binary7z(), append(append([]string{}, opts.options7z()...), path))
	case flavorBzip2:
		if _, err := exec.LookPath(opts.binaryBzcat()); err != nil {
			return openBzip2Inline(path)
		}
		return spawnDecompressor(ctx, opts.binaryBzcat(), append(append([]string{}, opts.optionsBzcat()...), path))
	case flavorGzip:
		return openGzipInline(path)
	case flavorXz:
		return openXzInline(path)
	case flavorZstd:
		return openZstdInline(path)
	case flavorBrotli:
		return openBrotliInline(path)
	default:
		panic("openCompressed: not a compressed flavor")
	}
}

// spawnDecompressor launches an external decompressor with stdin
// piped-and-closed (necessary on Windows so MSYS binaries don't mangle
// terminal colors, per the original tool's comment) and stdout/stderr
// piped. The returned Close waits for the process and surfaces a
// non-zero exit as SubCommandTerminatedUnsuccessfully with the
// captured stderr.
func spawnDecompressor(ctx context.Context, binary string, args []string) (*decompressorSource, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, wrapErr(KindSubCommandCouldNotBeStarted, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, wrapErr(KindSubCommandCouldNotBeStarted, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, wrapErr(KindSubCommandCouldNotBeStarted, err)
	}
	stdin.Close()

	return &decompressorSource{
		Reader: stdout,
		closeFn: func() error {
			err := cmd.Wait()
			if err != nil {
				if exitErr, ok := err.(*exec.ExitError); ok {
					return wrapErr(KindSubCommandTerminatedUnsuccessfully, &SubCommandTerminatedError{
						ExitError: exitErr,
						Stderr:    stderr.String(),
					})
				}
				return wrapErr(KindSubCommandCouldNotBeStarted, err)
			}
			return nil
		},
	}, nil
}

// openBzip2Inline decodes bzip2 without shelling out, used as a
// fallback when the configured bzcat binary is unavailable. Grounded
// on the teacher's own internal bzip2 decode in entities.go/pageviews.go.
func openBzip2Inline(path string) (*decompressorSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(KindIO, err)
	}
	r, err := bzip2.NewReader(f, &bzip2.ReaderConfig{})
	if err != nil {
		f.Close()
		return nil, wrapErr(KindIO, err)
	}
	return &decompressorSource{Reader: r, closeFn: f.Close}, nil
}

func openGzipInline(path string) (*decompressorSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(KindIO, err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, wrapErr(KindIO, err)
	}
	return &decompressorSource{Reader: gz, closeFn: func() error {
		gz.Close()
		return f.Close()
	}}, nil
}

func openXzInline(path string) (*decompressorSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(KindIO, err)
	}
	xr, err := xz.NewReader(f)
	if err != nil {
		f.Close()
		return nil, wrapErr(KindIO, err)
	}
	return &decompressorSource{Reader: xr, closeFn: f.Close}, nil
}

func openZstdInline(path string) (*decompressorSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(KindIO, err)
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, wrapErr(KindIO, err)
	}
	return &decompressorSource{Reader: zr, closeFn: func() error {
		zr.Close()
		return f.Close()
	}}, nil
}

func openBrotliInline(path string) (*decompressorSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(KindIO, err)
	}
	br := brotli.NewReader(f)
	return &decompressorSource{Reader: br, closeFn: f.Close}, nil
}
