package deadline

import (
	"context"
	"time"
)

// Ensure respeta el deadline del caller; si no trae uno, aplica d.
// d <= 0 deja el contexto como está.
func Ensure(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
