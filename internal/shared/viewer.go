package shared

import "context"

// Viewer describes the signed-in profile as seen by templates and handlers.
type Viewer struct {
	ID          int64
	Email       string
	FullName    string
	Role        string
	Permissions map[string]bool
}

// Can reports whether the viewer holds perm.
func (v *Viewer) Can(perm string) bool {
	if v == nil {
		return false
	}
	return v.Permissions[perm]
}

// DisplayName prefers the full name and falls back to the email.
func (v *Viewer) DisplayName() string {
	if v == nil {
		return ""
	}
	if v.FullName != "" {
		return v.FullName
	}
	return v.Email
}

type viewerContextKey struct{}

// ContextWithViewer stores the resolved viewer in context.
func ContextWithViewer(ctx context.Context, v *Viewer) context.Context {
	return context.WithValue(ctx, viewerContextKey{}, v)
}

// ViewerFromContext returns the viewer or nil for anonymous requests.
func ViewerFromContext(ctx context.Context) *Viewer {
	v, _ := ctx.Value(viewerContextKey{}).(*Viewer)
	return v
}
