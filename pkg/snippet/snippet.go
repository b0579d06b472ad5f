// Package snippet reads a bounded window of source lines around an error.
package snippet

import (
	"bufio"
	"os"
	"strings"

	"github.com/ekaya-inc/bugsneak/pkg/models"
)

// Defaults used when an Options field is zero.
const (
	DefaultLinesBefore   = 5
	DefaultLinesAfter    = 5
	DefaultMaxFileSizeKB = 512
)

// Options bounds the snippet window and the size of files that will be read.
type Options struct {
	LinesBefore   int
	LinesAfter    int
	MaxFileSizeKB int
}

func (o Options) withDefaults() Options {
	if o.LinesBefore <= 0 {
		o.LinesBefore = DefaultLinesBefore
	}
	if o.LinesAfter <= 0 {
		o.LinesAfter = DefaultLinesAfter
	}
	if o.MaxFileSizeKB <= 0 {
		o.MaxFileSizeKB = DefaultMaxFileSizeKB
	}
	return o
}

// Extract returns the lines around line in path.
// A missing or unreadable file gives nil. A file over the size guard gives a
// truncated marker with no lines.
func Extract(path string, line int, opts Options) *models.CodeSnippet {
	if path == "" {
		return nil
	}
	opts = opts.withDefaults()

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	if info.Size() > int64(opts.MaxFileSizeKB)*1024 {
		return &models.CodeSnippet{Lines: map[int]string{}, Target: line, Truncated: true}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	start := max(0, line-opts.LinesBefore-1)
	end := line + opts.LinesAfter

	lines := make(map[int]string)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), opts.MaxFileSizeKB*1024+1)
	for i := 0; scanner.Scan() && i < end; i++ {
		if i >= start {
			lines[i+1] = strings.TrimRight(scanner.Text(), " \t\r\n\x00\x0B")
		}
	}
	if scanner.Err() != nil {
		return nil
	}

	return &models.CodeSnippet{Lines: lines, Target: line}
}
