// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DumpFile is one element of a resolved search set: a local path (or,
// when Storage is set, an object-storage key served through it), its
// size, and the compression flavor that decides how it is opened.
type DumpFile struct {
	Path    string
	Size    int64
	Flavor  compressionFlavor
	Storage *StorageSource
}

// compressionSuffixes lists recognized dump compression suffixes and
// the flavor each one selects, used by flavorForName and stem. Variant
// preference is not taken from this list: ResolveDumpFiles keeps the
// lexicographically first name per stem, so plain wins, then
// .7z < .br < .bz2 < .gz < .xz < .zst.
var compressionSuffixes = []struct {
	suffix string
	flavor compressionFlavor
}{
	{".7z", flavorSevenZip},
	{".bz2", flavorBzip2},
	{".br", flavorBrotli},
	{".gz", flavorGzip},
	{".xz", flavorXz},
	{".zst", flavorZstd},
}

func flavorForName(name string) compressionFlavor {
	for _, s := range compressionSuffixes {
		if strings.HasSuffix(name, s.suffix) {
			return s.flavor
		}
	}
	return flavorPlain
}

// stem strips a trailing recognized compression suffix from name, the
// Go analogue of get_stem in the original get_dump_files.
func stem(name string) string {
	for _, s := range compressionSuffixes {
		if trimmed, ok := strings.CutSuffix(name, s.suffix); ok {
			return trimmed
		}
	}
	return name
}

// ResolveDumpFiles expands dumpFileOrPrefix into the ordered,
// de-duplicated list of files to search, following get_dump_files from
// the original tool: a path that names an existing regular file is
// returned as-is; otherwise the string is split into a directory and a
// filename prefix, the directory is scanned, and matching files are
// sorted and de-duplicated by stem (see stem above), keeping the
// lexicographically first name: plain over any compressed variant,
// then 7z, br, bz2, gz, xz, zst in that order.
//
// When storage is non-nil, matching keys under the bucket/prefix it
// names are merged in as well (C12).
func ResolveDumpFiles(ctx context.Context, dumpFileOrPrefix string, storage *StorageSource) ([]DumpFile, int64, error) {
	info, err := os.Stat(dumpFileOrPrefix)
	switch {
	case err == nil:
		if !info.Mode().IsRegular() {
			return nil, 0, wrapErr(KindDumpFileOrPrefixInvalid, nil)
		}
		return []DumpFile{{Path: dumpFileOrPrefix, Size: info.Size(), Flavor: flavorForName(dumpFileOrPrefix)}}, info.Size(), nil
	case !os.IsNotExist(err):
		return nil, 0, wrapErr(KindIO, err)
	}

	dir := filepath.Dir(dumpFileOrPrefix)
	prefix := filepath.Base(dumpFileOrPrefix)
	if dir == "" || dir == "." && !strings.HasPrefix(dumpFileOrPrefix, "./") {
		wd, err := os.Getwd()
		if err != nil {
			return nil, 0, wrapErr(KindCouldNotGetCurrentDir, err)
		}
		dir = wd
		prefix = dumpFileOrPrefix
	}
	dirInfo, err := os.Stat(dir)
	if err != nil || !dirInfo.IsDir() {
		return nil, 0, wrapErr(KindDumpFileOrPrefixInvalid, nil)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, wrapErr(KindIO, err)
	}

	type candidate struct {
		name string
		path string
		size int64
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, 0, wrapErr(KindIO, err)
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		candidates = append(candidates, candidate{
			name: e.Name(),
			path: filepath.Join(dir, e.Name()),
			size: fi.Size(),
		})
	}

	if storage != nil {
		storageCandidates, err := storage.listMatching(ctx, prefix)
		if err != nil {
			return nil, 0, err
		}
		for _, sc := range storageCandidates {
			candidates = append(candidates, candidate{name: sc.name, path: sc.key, size: sc.size})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].name < candidates[j].name })

	deduped := candidates[:0]
	for i := 0; i < len(candidates); i++ {
		if len(deduped) > 0 && stem(deduped[len(deduped)-1].name) == stem(candidates[i].name) {
			continue
		}
		deduped = append(deduped, candidates[i])
	}

	if len(deduped) == 0 {
		return nil, 0, wrapErr(KindNoDumpFilesFound, nil)
	}

	var total int64
	files := make([]DumpFile, 0, len(deduped))
	for _, c := range deduped {
		df := DumpFile{Path: c.path, Size: c.size, Flavor: flavorForName(c.name)}
		if storage != nil {
			// Only attribute Storage to candidates that did not come
			// from the local directory scan; those already have real
			// filesystem paths and must not be re-fetched from S3.
			if _, err := os.Stat(c.path); err != nil {
				df.Storage = storage
			}
		}
		total += c.size
		files = append(files, df)
	}
	return files, total, nil
}
