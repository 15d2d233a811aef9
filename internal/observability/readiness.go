package observability

import (
	"context"
	"fmt"
)

// ReadinessChecker reports whether a component is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// NamedCheck labels a ReadinessChecker for error reporting.
type NamedCheck struct {
	Name  string
	Check ReadinessChecker
}

// Readiness is ready when every check is; the first failure wins.
type Readiness []NamedCheck

func (r Readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.Check.CheckReadiness(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}
