package services

import "context"

// Func is a ManagedService built from closures. A nil Stop is a no-op.
type Func struct {
	ServiceName string
	Requires    []string
	OnStart     func(ctx context.Context) error
	OnStop      func(ctx context.Context) error
}

var _ ManagedService = (*Func)(nil)

func (f *Func) Name() string           { return f.ServiceName }
func (f *Func) Dependencies() []string { return f.Requires }

func (f *Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

func (f *Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}
