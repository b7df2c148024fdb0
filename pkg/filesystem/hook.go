package filesystem

import "context"

// Hook is where fault injection attaches. Before runs ahead of every
// primitive and may short-circuit it by returning an error. After sees the
// primitive's result and returns the error to reply with.
type Hook interface {
	Before(ctx context.Context, op string) error
	After(ctx context.Context, op string, err error) error
}

// NopHook forwards every primitive unchanged.
type NopHook struct{}

func (NopHook) Before(ctx context.Context, op string) error {
	return nil
}

func (NopHook) After(ctx context.Context, op string, err error) error {
	return err
}
