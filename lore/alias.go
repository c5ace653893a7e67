package lore

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

type aliasRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// aliasCache holds a compiled snapshot of the alias table. Rewrites are
// whole-word and case-insensitive; rules apply in trigger order so the
// result is deterministic. The snapshot lives until invalidated by the
// collaborator that writes aliases.
type aliasCache struct {
	mu     sync.RWMutex
	loaded bool
	rules  []aliasRule
	lookup func() (map[string]string, error)
}

func newAliasCache(lookup func() (map[string]string, error)) *aliasCache {
	return &aliasCache{lookup: lookup}
}

func (a *aliasCache) rewrite(text string) (string, error) {
	rules, err := a.load()
	if err != nil {
		return "", err
	}
	for _, r := range rules {
		text = r.pattern.ReplaceAllLiteralString(text, r.replacement)
	}
	return text, nil
}

func (a *aliasCache) load() ([]aliasRule, error) {
	a.mu.RLock()
	if a.loaded {
		rules := a.rules
		a.mu.RUnlock()
		return rules, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return a.rules, nil
	}

	aliases, err := a.lookup()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	triggers := make([]string, 0, len(aliases))
	for trigger := range aliases {
		triggers = append(triggers, trigger)
	}
	sort.Strings(triggers)

	rules := make([]aliasRule, 0, len(triggers))
	for _, trigger := range triggers {
		pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(trigger) + `\b`)
		if err != nil {
			continue
		}
		rules = append(rules, aliasRule{pattern: pattern, replacement: aliases[trigger]})
	}

	a.rules = rules
	a.loaded = true
	return rules, nil
}

func (a *aliasCache) invalidate() {
	a.mu.Lock()
	a.loaded = false
	a.rules = nil
	a.mu.Unlock()
}
