// Package operation classifies the call context a resolution runs in and
// holds the request-path predicates that demand inheritance.
//
// The host application tags each request context with a Kind and, for web
// requests, the request path:
//
//	ctx = operation.WithKind(ctx, operation.KindBuild)
//	ctx = operation.WithRequestPath(ctx, "/job/app/42/console")
package operation

import (
	"context"
	"fmt"
)

// Kind is the kind of operation a resolution runs in.
type Kind int

const (
	// KindUnspecified is the zero Kind: nothing is known about the caller.
	KindUnspecified Kind = iota

	// KindBrowse renders pages or API output.
	KindBrowse

	// KindConfigure edits a project's own raw configuration.
	KindConfigure

	// KindSubmit accepts a submitted configuration form. Resolutions in
	// this kind read raw fields rather than versioned snapshots.
	KindSubmit

	// KindBuild schedules, queues or executes a build. Resolutions in
	// this kind always inherit.
	KindBuild
)

var kindNames = [...]string{
	KindUnspecified: "unspecified",
	KindBrowse:      "browse",
	KindConfigure:   "configure",
	KindSubmit:      "submit",
	KindBuild:       "build",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operation kind %q", name)
}

type kindKey struct{}
type pathKey struct{}

// WithKind returns a context tagged with k.
func WithKind(ctx context.Context, k Kind) context.Context {
	return context.WithValue(ctx, kindKey{}, k)
}

// KindFrom returns the Kind of ctx, or KindUnspecified.
func KindFrom(ctx context.Context) Kind {
	k, _ := ctx.Value(kindKey{}).(Kind)
	return k
}

// WithRequestPath returns a context carrying the current request path.
func WithRequestPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathKey{}, path)
}

// RequestPath returns the request path of ctx, if any.
func RequestPath(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(pathKey{}).(string)
	return p, ok && p != ""
}
