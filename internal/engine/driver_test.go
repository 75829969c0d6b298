package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/vlm-bench/internal/accel"
	"github.com/daryltucker/vlm-bench/internal/backend"
	"github.com/daryltucker/vlm-bench/internal/model"
)

var (
	cpu = model.DeviceCPU
	gpu = model.DeviceAccelerator
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fakeBackend advances the clock by fixed costs per phase and fails the
// phases listed in fail (keyed by variant).
type fakeBackend struct {
	clock          *fakeClock
	load, pre, gen time.Duration
	fail           map[string]model.Phase
	closeErr       error

	loads, closes int
	devices       []model.Device
}

func (b *fakeBackend) failsIn(variant string, p model.Phase) bool {
	got, ok := b.fail[variant]
	return ok && got == p
}

func (b *fakeBackend) Load(ctx context.Context, variant string, device model.Device, modelDir string) (backend.Instance, error) {
	b.loads++
	b.devices = append(b.devices, device)
	b.clock.Advance(b.load)
	if b.failsIn(variant, model.PhaseLoading) {
		return nil, errors.New("weights missing")
	}
	return &fakeInstance{b: b, variant: variant}, nil
}

type fakeInstance struct {
	b       *fakeBackend
	variant string
}

func (i *fakeInstance) Preprocess(ctx context.Context, imagePath string) (backend.Input, error) {
	i.b.clock.Advance(i.b.pre)
	if i.b.failsIn(i.variant, model.PhasePreprocessing) {
		return nil, errors.New("not an image")
	}
	return imagePath, nil
}

func (i *fakeInstance) Generate(ctx context.Context, input backend.Input, prompt string) (string, error) {
	i.b.clock.Advance(i.b.gen)
	if i.b.failsIn(i.variant, model.PhaseGenerating) {
		return "", errors.New("out of memory")
	}
	return i.variant + ": " + prompt, nil
}

func (i *fakeInstance) Close() error {
	i.b.closes++
	return i.b.closeErr
}

type fixture struct {
	clock    *fakeClock
	registry *backend.Registry
	probes   int
}

func newFixture() *fixture {
	return &fixture{
		clock:    &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		registry: backend.NewRegistry(),
	}
}

func (f *fixture) add(name string, b *fakeBackend) *fakeBackend {
	b.clock = f.clock
	f.registry.Register(name, b)
	return b
}

func (f *fixture) probe(available bool) accel.Probe {
	return func(context.Context) bool {
		f.probes++
		return available
	}
}

func (f *fixture) driver(probe accel.Probe, opts ...Option) *Driver {
	opts = append([]Option{
		WithClock(f.clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return NewDriver(f.registry, probe, opts...)
}

func configs(outcomes []model.Outcome) []model.Configuration {
	out := make([]model.Configuration, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Config
	}
	return out
}

func TestExpandOrder(t *testing.T) {
	got := Expand([]string{"A", "B"}, []string{"small", "large"}, []model.Device{cpu, gpu}, true)
	want := []model.Configuration{
		{Backend: "A", Variant: "small", Device: cpu},
		{Backend: "A", Variant: "small", Device: gpu},
		{Backend: "A", Variant: "large", Device: cpu},
		{Backend: "A", Variant: "large", Device: gpu},
		{Backend: "B", Variant: "small", Device: cpu},
		{Backend: "B", Variant: "small", Device: gpu},
		{Backend: "B", Variant: "large", Device: cpu},
		{Backend: "B", Variant: "large", Device: gpu},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Expand() mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandWithoutAccelerator(t *testing.T) {
	got := Expand([]string{"A", "B"}, []string{"small"}, []model.Device{gpu, cpu}, false)
	want := []model.Configuration{
		{Backend: "A", Variant: "small", Device: cpu},
		{Backend: "B", Variant: "small", Device: cpu},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Expand() mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, Expand([]string{"A"}, []string{"small"}, []model.Device{gpu}, false))
	assert.Empty(t, Expand(nil, []string{"small"}, []model.Device{cpu}, true))
}

func TestTwoBackendsOnCPU(t *testing.T) {
	f := newFixture()
	f.add("A", &fakeBackend{load: time.Second, pre: 100 * time.Millisecond, gen: 2 * time.Second})
	f.add("B", &fakeBackend{load: 3 * time.Second, pre: 50 * time.Millisecond, gen: time.Second})

	outcomes := f.driver(f.probe(true)).RunMatrix(context.Background(), Matrix{
		Backends:  []string{"A", "B"},
		Variants:  []string{"small"},
		Devices:   []model.Device{cpu},
		ImagePath: "cat.png",
		Prompt:    "what is this?",
	})

	require.Len(t, outcomes, 2)
	assert.Zero(t, f.probes, "CPU-only matrices never probe")

	want := []model.Result{
		{
			Config:             model.Configuration{Backend: "A", Variant: "small", Device: cpu},
			LoadDuration:       time.Second,
			PreprocessDuration: 100 * time.Millisecond,
			GenerateDuration:   2 * time.Second,
			Output:             "small: what is this?",
		},
		{
			Config:             model.Configuration{Backend: "B", Variant: "small", Device: cpu},
			LoadDuration:       3 * time.Second,
			PreprocessDuration: 50 * time.Millisecond,
			GenerateDuration:   time.Second,
			Output:             "small: what is this?",
		},
	}
	for i, o := range outcomes {
		require.True(t, o.OK(), "outcome %d: %v", i, o.Err)
		if diff := cmp.Diff(want[i], *o.Result); diff != "" {
			t.Errorf("result %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	assert.Equal(t, 3100*time.Millisecond, outcomes[0].Result.Total())
	assert.Equal(t, 4050*time.Millisecond, outcomes[1].Result.Total())
}

func TestAcceleratorUnavailable(t *testing.T) {
	f := newFixture()
	a := f.add("A", &fakeBackend{})

	outcomes := f.driver(f.probe(false)).RunMatrix(context.Background(), Matrix{
		Backends: []string{"A"},
		Variants: []string{"small", "large"},
		Devices:  []model.Device{cpu, gpu},
	})

	want := []model.Configuration{
		{Backend: "A", Variant: "small", Device: cpu},
		{Backend: "A", Variant: "large", Device: cpu},
	}
	if diff := cmp.Diff(want, configs(outcomes)); diff != "" {
		t.Errorf("configurations mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, f.probes)
	assert.Equal(t, []model.Device{cpu, cpu}, a.devices)
}

func TestAcceleratorAvailableProbedOnce(t *testing.T) {
	f := newFixture()
	f.add("A", &fakeBackend{})
	f.add("B", &fakeBackend{})

	outcomes := f.driver(f.probe(true)).RunMatrix(context.Background(), Matrix{
		Backends: []string{"A", "B"},
		Variants: []string{"small", "large"},
		Devices:  []model.Device{cpu, gpu},
	})
	assert.Len(t, outcomes, 8)
	assert.Equal(t, 1, f.probes)
}

func TestPanickingProbe(t *testing.T) {
	f := newFixture()
	f.add("A", &fakeBackend{})

	var outcomes []model.Outcome
	assert.NotPanics(t, func() {
		outcomes = f.driver(func(context.Context) bool { panic("driver library missing") }).
			RunMatrix(context.Background(), Matrix{
				Backends: []string{"A"},
				Variants: []string{"small"},
				Devices:  []model.Device{cpu, gpu},
			})
	})
	require.Len(t, outcomes, 1)
	assert.Equal(t, cpu, outcomes[0].Config.Device)

	// A nil probe is treated the same way.
	assert.Len(t, f.driver(nil).Plan(context.Background(), Matrix{
		Backends: []string{"A"},
		Variants: []string{"small"},
		Devices:  []model.Device{gpu},
	}), 0)
}

func TestLoadFailureContinues(t *testing.T) {
	f := newFixture()
	a := f.add("A", &fakeBackend{
		load: time.Second,
		fail: map[string]model.Phase{"small": model.PhaseLoading},
	})

	outcomes := f.driver(f.probe(false)).RunMatrix(context.Background(), Matrix{
		Backends: []string{"A"},
		Variants: []string{"small", "large"},
		Devices:  []model.Device{cpu},
	})
	require.Len(t, outcomes, 2)

	failed := outcomes[0]
	require.False(t, failed.OK())
	assert.Nil(t, failed.Result)
	assert.Equal(t, model.PhaseLoading, failed.Err.Phase)
	assert.ErrorIs(t, failed.Err, model.ErrBackendLoad)
	assert.Contains(t, failed.Err.Error(), "weights missing")

	rec := model.NewRecord("r", f.clock.Now(), failed)
	assert.Zero(t, rec.TotalDuration)

	assert.True(t, outcomes[1].OK())
	assert.Equal(t, 2, a.loads)
	assert.Equal(t, 1, a.closes, "only loaded instances are released")
}

func TestPhaseFailuresReleaseInstance(t *testing.T) {
	f := newFixture()
	a := f.add("A", &fakeBackend{
		fail: map[string]model.Phase{
			"small": model.PhasePreprocessing,
			"large": model.PhaseGenerating,
		},
		closeErr: errors.New("device busy"),
	})

	outcomes := f.driver(f.probe(false)).RunMatrix(context.Background(), Matrix{
		Backends: []string{"A"},
		Variants: []string{"small", "large", "medium"},
		Devices:  []model.Device{cpu},
	})
	require.Len(t, outcomes, 3)

	assert.ErrorIs(t, outcomes[0].Err, model.ErrPreprocess)
	assert.Equal(t, model.PhasePreprocessing, outcomes[0].Err.Phase)
	assert.Equal(t, model.PhaseFailed, outcomes[0].Phase())
	assert.ErrorIs(t, outcomes[1].Err, model.ErrGeneration)
	assert.Equal(t, model.PhaseGenerating, outcomes[1].Err.Phase)

	// A release error does not turn a success into a failure.
	assert.True(t, outcomes[2].OK())
	assert.Equal(t, model.PhaseDone, outcomes[2].Phase())

	assert.Equal(t, 3, a.loads)
	assert.Equal(t, 3, a.closes)
}

func TestUnknownBackend(t *testing.T) {
	f := newFixture()
	f.add("A", &fakeBackend{})

	outcomes := f.driver(f.probe(false)).RunMatrix(context.Background(), Matrix{
		Backends: []string{"ghost", "A"},
		Variants: []string{"small"},
		Devices:  []model.Device{cpu},
	})
	require.Len(t, outcomes, 2)
	assert.ErrorIs(t, outcomes[0].Err, model.ErrBackendLoad)
	assert.ErrorIs(t, outcomes[0].Err, backend.ErrUnknownBackend)
	assert.True(t, outcomes[1].OK())
}

func TestOutcomeHook(t *testing.T) {
	f := newFixture()
	f.add("A", &fakeBackend{fail: map[string]model.Phase{"large": model.PhaseGenerating}})

	var seen []model.Outcome
	outcomes := f.driver(f.probe(true), WithOutcomeHook(func(o model.Outcome) {
		seen = append(seen, o)
	})).RunMatrix(context.Background(), Matrix{
		Backends: []string{"A"},
		Variants: []string{"small", "large"},
		Devices:  []model.Device{cpu, gpu},
	})
	assert.Len(t, outcomes, 4)
	assert.Equal(t, outcomes, seen)
}

func TestCancelledRunStops(t *testing.T) {
	f := newFixture()
	a := f.add("A", &fakeBackend{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes := f.driver(f.probe(false)).RunMatrix(ctx, Matrix{
		Backends: []string{"A"},
		Variants: []string{"small", "large"},
		Devices:  []model.Device{cpu},
	})
	assert.Empty(t, outcomes)
	assert.Zero(t, a.loads)
}
