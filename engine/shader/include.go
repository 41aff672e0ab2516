package shader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/shaderpixel/engine/core"
)

// DefaultIncludeDepth is the deepest include nesting accepted.
const DefaultIncludeDepth = 16

// Preprocess returns the source of path with every #include "file" (or
// <file>) expanded in place. Included files resolve relative to the file
// including them. Nesting deeper than maxDepth, which include cycles always
// reach, fails with core.ErrIncludeDepth. The second result lists the
// canonical paths of every file read, path first.
func Preprocess(path string, maxDepth int) (string, []string, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultIncludeDepth
	}
	p := &preprocessor{maxDepth: maxDepth, seen: map[string]bool{}}
	src, err := p.expand(Canonical(path), 0)
	if err != nil {
		return "", nil, err
	}
	return src, p.files, nil
}

type preprocessor struct {
	maxDepth int
	seen     map[string]bool
	files    []string
}

func (p *preprocessor) expand(path string, depth int) (string, error) {
	if depth > p.maxDepth {
		return "", fmt.Errorf("%s: nested more than %d includes deep: %w", path, p.maxDepth, core.ErrIncludeDepth)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !p.seen[path] {
		p.seen[path] = true
		p.files = append(p.files, path)
	}

	lines := strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	for i, ln := range lines {
		trimmed := strings.TrimSpace(ln)
		if strings.HasPrefix(trimmed, "#extension GL_GOOGLE_include_directive") {
			lines[i] = "// " + trimmed
			continue
		}
		if !strings.HasPrefix(trimmed, "#include") {
			continue
		}
		name, ok := includeTarget(trimmed)
		if !ok {
			return "", fmt.Errorf("%s:%d: malformed include %q", path, i+1, trimmed)
		}
		body, err := p.expand(filepath.Join(filepath.Dir(path), name), depth+1)
		if err != nil {
			return "", fmt.Errorf("%s:%d: %w", path, i+1, err)
		}
		lines[i] = "// " + trimmed + "\n" + strings.TrimRight(body, "\n")
	}
	return strings.Join(lines, "\n"), nil
}

func includeTarget(line string) (string, bool) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "#include"))
	if len(rest) < 3 {
		return "", false
	}
	closing := byte('"')
	switch rest[0] {
	case '"':
	case '<':
		closing = '>'
	default:
		return "", false
	}
	end := strings.IndexByte(rest[1:], closing)
	if end <= 0 {
		return "", false
	}
	return rest[1 : end+1], true
}
