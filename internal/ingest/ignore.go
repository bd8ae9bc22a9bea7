package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// IgnoreFiles are read from the corpus root, in order. Both use .gitignore
// syntax; later patterns win.
var IgnoreFiles = []string{".gitignore", ".amanragignore"}

// Ignorer decides which corpus paths a directory load skips.
type Ignorer struct {
	rules []ignoreRule
}

type ignoreRule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
}

// LoadIgnorer reads the ignore files in root. Missing files are fine.
func LoadIgnorer(root string) (*Ignorer, error) {
	ig := &Ignorer{}
	for _, name := range IgnoreFiles {
		if err := ig.addFile(filepath.Join(root, name)); err != nil {
			return nil, err
		}
	}
	return ig, nil
}

func (ig *Ignorer) addFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		if err := ig.AddPattern(sc.Text()); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
	}
	return sc.Err()
}

// AddPattern adds one .gitignore line. Blank lines and comments are skipped.
func (ig *Ignorer) AddPattern(line string) error {
	p := strings.TrimRight(line, " \t\r")
	if strings.HasSuffix(p, `\`) && strings.HasSuffix(line, " ") {
		p += " "
	}
	if p == "" || strings.HasPrefix(p, "#") {
		return nil
	}

	var r ignoreRule
	switch {
	case strings.HasPrefix(p, `\#`), strings.HasPrefix(p, `\!`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	}
	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimSuffix(p, "/")
	}
	// A slash anywhere but the end ties the pattern to the root.
	if strings.Contains(p, "/") {
		r.anchored = true
		p = strings.TrimPrefix(p, "/")
	}
	if p == "" {
		return nil
	}

	re, err := globRegexp(p)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", line, err)
	}
	r.re = re
	ig.rules = append(ig.rules, r)
	return nil
}

// Ignored reports whether rel, a slash or OS path relative to the corpus
// root, is excluded. A path inside an excluded directory is excluded.
func (ig *Ignorer) Ignored(rel string, isDir bool) bool {
	if ig == nil || len(ig.rules) == 0 {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	ignored := false
	for _, r := range ig.rules {
		if r.matches(parts, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r ignoreRule) matches(parts []string, isDir bool) bool {
	for i := range parts {
		if r.dirOnly && i == len(parts)-1 && !isDir {
			continue
		}
		candidate := parts[i]
		if r.anchored {
			candidate = strings.Join(parts[:i+1], "/")
		}
		if r.re.MatchString(candidate) {
			return true
		}
	}
	return false
}

// globRegexp translates a .gitignore glob into an anchored expression.
func globRegexp(p string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(p); i++ {
		switch c := p[i]; {
		case strings.HasPrefix(p[i:], "**/"):
			b.WriteString("(?:.*/)?")
			i += 2
		case strings.HasPrefix(p[i:], "**"):
			b.WriteString(".*")
			i++
		case c == '*':
			b.WriteString("[^/]*")
		case c == '?':
			b.WriteString("[^/]")
		case c == '\\' && i+1 < len(p):
			i++
			b.WriteString(regexp.QuoteMeta(p[i : i+1]))
		case c == '[':
			end := strings.IndexByte(p[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := p[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
