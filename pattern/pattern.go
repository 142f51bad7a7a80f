// Package pattern implements the glob dialect shared by tag importance,
// correlation and alarm rules: '*' matches any run of characters, '?'
// matches one character, matching is case-insensitive and anchored to the
// full string.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Compile translates a glob into an anchored case-insensitive regexp.
func Compile(glob string) (*regexp.Regexp, error) {
	if glob == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", glob, err)
	}
	return re, nil
}

// IsLiteral reports whether the glob contains no wildcard characters and
// therefore matches exactly one string (ignoring case).
func IsLiteral(glob string) bool {
	return !strings.ContainsAny(glob, "*?")
}

// Cache memoizes compiled globs. Safe for concurrent use.
type Cache struct {
	mu sync.RWMutex
	m  map[string]*regexp.Regexp
}

// NewCache creates an empty pattern cache.
func NewCache() *Cache {
	return &Cache{m: make(map[string]*regexp.Regexp)}
}

// Match reports whether s matches the glob, compiling and caching it on
// first use. Invalid patterns never match.
func (c *Cache) Match(glob, s string) bool {
	re, err := c.Get(glob)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// Get returns the compiled regexp for glob, compiling on first use.
func (c *Cache) Get(glob string) (*regexp.Regexp, error) {
	c.mu.RLock()
	re, ok := c.m[glob]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := Compile(glob)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.m[glob] = re
	c.mu.Unlock()
	return re, nil
}
