package importer

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

var ErrNoSeeds = errors.New("no seeds loaded")

// LoadSeeds reads one URL per line from path. Blank lines and lines starting
// with # are ignored.
func LoadSeeds(path string) ([]string, error) {
	slog.Info("loading seeds", slog.String("path", path))
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	seeds, err := ReadSeeds(file)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded seeds", slog.Int("count", len(seeds)))
	return seeds, nil
}

func ReadSeeds(r io.Reader) ([]string, error) {
	var seeds []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}
	return seeds, nil
}
