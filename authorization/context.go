package authorization

import "context"

// Anonymous is the subject used when the request layer supplied no
// identity.
const Anonymous = "system:anonymous"

type contextKeySubject struct{}

// WithSubject stores the acting subject (a user id) in the context.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, contextKeySubject{}, sub)
}

// SubjectFromContext returns the current subject, or Anonymous when
// none was stored.
func SubjectFromContext(ctx context.Context) string {
	sub, ok := ctx.Value(contextKeySubject{}).(string)
	if !ok || sub == "" {
		return Anonymous
	}

	return sub
}
