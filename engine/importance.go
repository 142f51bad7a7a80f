package engine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/pattern"
	"github.com/intellimaint/intellimaint/store"
)

type importanceEntry struct {
	re         *regexp.Regexp
	importance model.Importance
	priority   int
}

// ImportanceMatcher resolves a tag id to its importance rank via the
// configured glob patterns. Lookups never block on I/O; Refresh swaps
// the compiled set atomically.
type ImportanceMatcher struct {
	repo       store.TagImportanceRepository
	defaultImp model.Importance
	log        *zap.Logger

	entries  atomic.Pointer[[]importanceEntry]
	warnOnce sync.Once
}

// NewImportanceMatcher builds an uninitialized matcher; call Refresh
// before the first assessment tick.
func NewImportanceMatcher(repo store.TagImportanceRepository, def model.Importance, log *zap.Logger) *ImportanceMatcher {
	return &ImportanceMatcher{repo: repo, defaultImp: def, log: log}
}

// Refresh reloads the pattern list and compiles it. Patterns that fail
// to compile are skipped; the swap is all-or-nothing per refresh.
func (m *ImportanceMatcher) Refresh(ctx context.Context) error {
	rules, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load importance rules: %w", err)
	}
	entries := make([]importanceEntry, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		re, err := pattern.Compile(r.Pattern)
		if err != nil {
			m.log.Warn("skipping invalid importance pattern", zap.String("pattern", r.Pattern), zap.Error(err))
			continue
		}
		entries = append(entries, importanceEntry{re: re, importance: r.Importance, priority: r.Priority})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].priority > entries[j].priority })
	m.entries.Store(&entries)
	return nil
}

// Lookup returns the importance of the highest-priority matching pattern,
// or the default when none match. Before the first Refresh it warns once
// and returns the default.
func (m *ImportanceMatcher) Lookup(tagID string) model.Importance {
	entries := m.entries.Load()
	if entries == nil {
		m.warnOnce.Do(func() {
			m.log.Warn("tag importance matcher not initialized, using default",
				zap.String("default", m.defaultImp.String()))
		})
		return m.defaultImp
	}
	for _, e := range *entries {
		if e.re.MatchString(tagID) {
			return e.importance
		}
	}
	return m.defaultImp
}
