// internal/listeners/probe_test.go
package listeners

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
)

func element(t *testing.T) *dom.Element {
	t.Helper()
	page, err := dom.ParseHTMLString(`<html><body><span id="s">x</span></body></html>`, dom.ParseOptions{})
	require.NoError(t, err)
	el, err := page.Root.Query("#s")
	require.NoError(t, err)
	require.NotNil(t, el)
	return el
}

func TestHasClickListener_CachesAnswers(t *testing.T) {
	calls := 0
	p := NewProbe(zaptest.NewLogger(t), func(context.Context, *dom.Element) (bool, error) {
		calls++
		return true, nil
	}, Options{Size: 8, TTL: time.Minute})
	el := element(t)

	for i := 0; i < 3; i++ {
		ok, err := p.HasClickListener(context.Background(), el)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, p.Len())

	p.Invalidate(el.Document(), el.Key())
	_, err := p.HasClickListener(context.Background(), el)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	p.Reset()
	assert.Zero(t, p.Len())
}

func TestHasClickListener_Expires(t *testing.T) {
	calls := 0
	p := NewProbe(zaptest.NewLogger(t), func(context.Context, *dom.Element) (bool, error) {
		calls++
		return false, nil
	}, Options{Size: 8, TTL: 20 * time.Millisecond})
	el := element(t)

	_, _ = p.HasClickListener(context.Background(), el)
	time.Sleep(60 * time.Millisecond)
	_, _ = p.HasClickListener(context.Background(), el)
	assert.Equal(t, 2, calls)
}

func TestHasClickListener_ErrorsAreNotCached(t *testing.T) {
	calls := 0
	boom := errors.New("target closed")
	p := NewProbe(zaptest.NewLogger(t), func(context.Context, *dom.Element) (bool, error) {
		calls++
		return false, boom
	}, Options{})
	el := element(t)

	_, err := p.HasClickListener(context.Background(), el)
	assert.ErrorIs(t, err, boom)
	_, err = p.HasClickListener(context.Background(), el)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
	assert.Zero(t, p.Len())
}

func TestHasClickListener_NoBackend(t *testing.T) {
	p := NewProbe(zaptest.NewLogger(t), nil, Options{})
	ok, err := p.HasClickListener(context.Background(), element(t))
	require.NoError(t, err)
	assert.False(t, ok)
}
