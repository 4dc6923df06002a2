// Package ingest はアーカイブダンプの展開（.zst → .jsonl）と、
// ストアへの一括取り込みを提供する。
package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ExpandPaths はファイルとディレクトリの混在した指定をファイルパスの一覧に展開する。
// ディレクトリは直下のファイルのみを対象とし、recursiveがtrueの場合は配下を再帰的に辿る。
// ディレクトリ内のファイルは名前順に並べる。
func ExpandPaths(paths []string, recursive bool) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		found, err := listDir(p, recursive)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func listDir(dir string, recursive bool) ([]string, error) {
	var files []string

	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
		return files, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
