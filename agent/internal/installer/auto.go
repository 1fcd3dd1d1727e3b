package installer

import "context"

// Auto picks Native when Probe reports the capability at call time and
// Fallback otherwise.
type Auto struct {
	Native   Executor
	Fallback Executor
	Probe    func() bool
}

// NewAuto wires the default probe for bin.
func NewAuto(native *Native, fallback *Fallback) *Auto {
	return &Auto{Native: native, Fallback: fallback, Probe: func() bool { return CanInstallNatively(native.Bin) }}
}

func (a *Auto) Execute(ctx context.Context, job Job, hooks Hooks) (Result, error) {
	if a.Native != nil && a.Probe != nil && a.Probe() {
		return a.Native.Execute(ctx, job, hooks)
	}
	return a.Fallback.Execute(ctx, job, hooks)
}
