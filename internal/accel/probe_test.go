package accel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeAuto, "auto": ModeAuto, "ON": ModeOn, " off ": ModeOff} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("maybe")
	assert.Error(t, err)
}

func TestStaticAndForMode(t *testing.T) {
	ctx := context.Background()
	assert.True(t, Static(true)(ctx))
	assert.False(t, Static(false)(ctx))
	assert.True(t, ForMode(ModeOn, nil)(ctx))
	assert.False(t, ForMode(ModeOff, nil)(ctx))
}

func TestSafeRecoversPanic(t *testing.T) {
	p := Safe(func(context.Context) bool { panic("driver crashed") }, nil)
	assert.False(t, p(context.Background()))

	assert.False(t, Safe(nil, nil)(context.Background()))
	assert.True(t, Safe(Static(true), nil)(context.Background()))
}

func newTestProbe(checks map[string]func(context.Context) error) *SystemProbe {
	p := NewSystemProbe(nil)
	p.Checks = checks
	p.goos, p.goarch = "linux", "amd64"
	return p
}

func TestSystemProbe(t *testing.T) {
	fail := func(context.Context) error { return errors.New("not found") }
	ok := func(context.Context) error { return nil }

	t.Run("any vendor succeeds", func(t *testing.T) {
		p := newTestProbe(map[string]func(context.Context) error{"nvidia": fail, "amd": ok})
		assert.True(t, p.Available(context.Background()))
	})

	t.Run("all vendors fail", func(t *testing.T) {
		p := newTestProbe(map[string]func(context.Context) error{"nvidia": fail, "amd": fail})
		assert.False(t, p.Available(context.Background()))
	})

	t.Run("no checks", func(t *testing.T) {
		p := newTestProbe(nil)
		assert.False(t, p.Available(context.Background()))
	})

	t.Run("slow check times out", func(t *testing.T) {
		slow := func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}
		p := newTestProbe(map[string]func(context.Context) error{"nvidia": slow})
		p.Timeout = 20 * time.Millisecond
		assert.False(t, p.Available(context.Background()))
	})

	t.Run("panicking check", func(t *testing.T) {
		boom := func(context.Context) error { panic("boom") }
		p := newTestProbe(map[string]func(context.Context) error{"nvidia": boom})
		assert.NotPanics(t, func() {
			assert.False(t, Safe(p.Available, nil)(context.Background()))
		})

		p = newTestProbe(map[string]func(context.Context) error{"nvidia": boom, "amd": ok})
		assert.True(t, p.Available(context.Background()))
	})

	t.Run("apple silicon", func(t *testing.T) {
		p := newTestProbe(map[string]func(context.Context) error{"nvidia": ok})
		p.goos, p.goarch = "darwin", "arm64"
		assert.False(t, p.Available(context.Background()))
	})
}
