package scope

import "context"

type ctxKey struct{}

// WithScope binds c to ctx so code deeper in the same operation can find it
// without threading it through every signature.
func WithScope(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the scope bound to ctx. A missing scope is a lifecycle
// error: the boundary wiring is absent.
func FromContext(ctx context.Context) (*Context, error) {
	if ctx != nil {
		if c, ok := ctx.Value(ctxKey{}).(*Context); ok && c != nil {
			return c, nil
		}
	}
	return nil, lifecycle("FromContext", ErrNoScope)
}

// Lookup returns the bound scope, if any, without treating absence as misuse.
func Lookup(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(ctxKey{}).(*Context)
	return c, ok && c != nil
}
