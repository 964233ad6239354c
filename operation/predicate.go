package operation

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// Predicate decides whether a request path needs inherited values.
type Predicate interface {
	Name() string
	Match(path string) bool
}

type globPredicate struct {
	name     string
	patterns []string
	globs    []glob.Glob
}

// Glob compiles '/'-separated globs into a Predicate matching any of them.
// '*' matches within one path segment, '**' across segments, and {a,b}
// matches either alternative.
func Glob(name string, patterns ...string) (Predicate, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("predicate %s: no patterns", name)
	}
	p := &globPredicate{name: name, patterns: patterns}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("predicate %s: compile %q: %w", name, pattern, err)
		}
		p.globs = append(p.globs, g)
	}
	return p, nil
}

// MustGlob is like Glob but panics on an invalid pattern.
func MustGlob(name string, patterns ...string) Predicate {
	p, err := Glob(name, patterns...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *globPredicate) Name() string { return p.name }

func (p *globPredicate) Match(path string) bool {
	for _, g := range p.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func (p *globPredicate) String() string {
	return p.name + "=" + strings.Join(p.patterns, ";")
}

type funcPredicate struct {
	name string
	fn   func(string) bool
}

// Func wraps fn as a Predicate.
func Func(name string, fn func(path string) bool) Predicate {
	return funcPredicate{name: name, fn: fn}
}

func (p funcPredicate) Name() string           { return p.name }
func (p funcPredicate) Match(path string) bool { return p.fn(path) }

// Predicates is an ordered, append-only predicate set populated at startup.
// It is safe for concurrent use.
type Predicates struct {
	mu    sync.RWMutex
	items []Predicate
}

// NewPredicates creates a set holding ps in order.
func NewPredicates(ps ...Predicate) *Predicates {
	s := &Predicates{}
	s.Register(ps...)
	return s
}

// Register appends predicates. Nil entries are ignored.
func (s *Predicates) Register(ps ...Predicate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		if p != nil {
			s.items = append(s.items, p)
		}
	}
}

// All returns the registered predicates in order.
func (s *Predicates) All() []Predicate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Match returns the name of the first predicate matching path.
// A nil set matches nothing.
func (s *Predicates) Match(path string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.items {
		if p.Match(path) {
			return p.Name(), true
		}
	}
	return "", false
}

// Built-in predicate patterns. Projects may be nested in folders, so every
// pattern starts with '**'.
var (
	JobPagePatterns = []string{"**/job/*", "**/job/*/"}

	BuildPagePatterns = []string{
		"**/job/*/" + buildRef,
		"**/job/*/" + buildRef + "/**",
	}

	DashboardPatterns = []string{"/", "**/view/*", "**/view/*/"}

	PromotionPagePatterns = []string{"**/promotion", "**/promotion/**"}

	SCMPollLogPatterns = []string{"**/scmPollLog", "**/scmPollLog/**"}
)

const buildRef = "{[0-9]*,lastBuild,lastStableBuild,lastSuccessfulBuild,lastFailedBuild,lastCompletedBuild}"

// DefaultPredicates returns the built-in predicates: job detail pages,
// build pages, dashboards and views, promotion pages and SCM polling logs.
func DefaultPredicates() []Predicate {
	return []Predicate{
		MustGlob("job-page", JobPagePatterns...),
		MustGlob("build-page", BuildPagePatterns...),
		MustGlob("dashboard", DashboardPatterns...),
		MustGlob("promotion", PromotionPagePatterns...),
		MustGlob("scm-poll-log", SCMPollLogPatterns...),
	}
}
