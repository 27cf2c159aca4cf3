package placeholder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/imagewarm/optimizer"
)

var (
	heroBlur   = optimizer.CachedImage{Src: "hero.png", Variant: optimizer.DefaultBlur}
	heroResize = optimizer.CachedImage{Src: "hero.png", Variant: optimizer.Resize{Width: 800, Height: 600, Quality: 75}}
	logoBlur   = optimizer.CachedImage{Src: "logo.png", Variant: optimizer.DefaultBlur}
)

func svgEngine() EngineFunc {
	return func(ctx context.Context, img optimizer.CachedImage) ([]byte, error) {
		return []byte("<svg>" + img.Src + "</svg>"), nil
	}
}

func TestCacheInsertIfAbsent(t *testing.T) {
	c := NewCache()

	ok, err := c.Insert(heroBlur, []byte("first"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Insert(heroBlur, []byte("second"))
	require.NoError(t, err)
	assert.False(t, ok)

	got, found := c.Lookup(heroBlur)
	assert.True(t, found)
	assert.Equal(t, "first", got)
	assert.Equal(t, 1, c.Len())

	_, err = c.Insert(heroResize, []byte("x"))
	assert.ErrorIs(t, err, ErrNotBlur)
}

func TestCachePayloadIsCopied(t *testing.T) {
	c := NewCache()
	buf := []byte("abc")
	_, err := c.Insert(heroBlur, buf)
	require.NoError(t, err)

	buf[0] = 'z'
	got, _ := c.Lookup(heroBlur)
	assert.Equal(t, "abc", got)
}

func TestCacheFreeze(t *testing.T) {
	c := NewCache()
	_, err := c.Insert(heroBlur, []byte("a"))
	require.NoError(t, err)

	c.Freeze()
	assert.True(t, c.Frozen())

	_, err = c.Insert(logoBlur, []byte("b"))
	assert.ErrorIs(t, err, ErrFrozen)

	_, found := c.Lookup(heroBlur)
	assert.True(t, found)
}

func TestCacheConcurrentInsertWritesOnce(t *testing.T) {
	c := NewCache()
	var stored atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := c.Insert(heroBlur, []byte(fmt.Sprintf("v%d", i)))
			assert.NoError(t, err)
			if ok {
				stored.Add(1)
			}
			_, _ = c.Lookup(heroBlur)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), stored.Load())
	assert.Equal(t, 1, c.Len())
}

func TestPopulateOnlyBlur(t *testing.T) {
	var calls []optimizer.CachedImage
	var mu sync.Mutex
	engine := EngineFunc(func(ctx context.Context, img optimizer.CachedImage) ([]byte, error) {
		mu.Lock()
		calls = append(calls, img)
		mu.Unlock()
		return []byte("svg"), nil
	})

	c := NewCache()
	res, err := Populate(context.Background(), c, engine, []optimizer.CachedImage{heroBlur, heroResize, heroBlur})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Considered)
	assert.Equal(t, 1, res.Inserted)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []optimizer.CachedImage{heroBlur}, calls)

	_, found := c.Lookup(heroResize)
	assert.False(t, found)
	assert.Equal(t, map[optimizer.CachedImage]string{heroBlur: "svg"}, c.Snapshot())
}

func TestPopulateFailureIsIsolated(t *testing.T) {
	engine := EngineFunc(func(ctx context.Context, img optimizer.CachedImage) ([]byte, error) {
		if img.Src == "logo.png" {
			return nil, fmt.Errorf("open logo.png: %w", fs.ErrNotExist)
		}
		return []byte("svg"), nil
	})

	c := NewCache()
	res, err := Populate(context.Background(), c, engine, []optimizer.CachedImage{logoBlur, heroBlur}, WithConcurrency(1))
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, logoBlur, res.Errors[0].Image)
	assert.ErrorIs(t, res.Errors[0], fs.ErrNotExist)
	assert.Equal(t, 1, res.Inserted)

	_, found := c.Lookup(logoBlur)
	assert.False(t, found)
}

func TestPopulateRetriesTransientErrors(t *testing.T) {
	var attempts atomic.Int64
	engine := EngineFunc(func(ctx context.Context, img optimizer.CachedImage) ([]byte, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("engine busy")
		}
		return []byte("svg"), nil
	})

	c := NewCache()
	res, err := Populate(context.Background(), c, engine, []optimizer.CachedImage{heroBlur},
		WithRetries(3), WithRetryInterval(time.Millisecond))
	require.NoError(t, err)

	assert.Empty(t, res.Errors)
	assert.Equal(t, int64(3), attempts.Load())
	assert.Equal(t, 1, c.Len())
}

func TestPopulateDoesNotRetryPermanentErrors(t *testing.T) {
	var attempts atomic.Int64
	engine := EngineFunc(func(ctx context.Context, img optimizer.CachedImage) ([]byte, error) {
		attempts.Add(1)
		return nil, nil
	})

	res, err := Populate(context.Background(), NewCache(), engine, []optimizer.CachedImage{heroBlur},
		WithRetries(5), WithRetryInterval(time.Millisecond))
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], errEmptyPayload)
	assert.Equal(t, int64(1), attempts.Load())
}

func TestPopulateTimeoutPerKey(t *testing.T) {
	engine := EngineFunc(func(ctx context.Context, img optimizer.CachedImage) ([]byte, error) {
		if img.Src == "hero.png" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []byte("svg"), nil
	})

	c := NewCache()
	res, err := Populate(context.Background(), c, engine, []optimizer.CachedImage{heroBlur, logoBlur},
		WithTimeout(20*time.Millisecond), WithRetries(0))
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], context.DeadlineExceeded)
	_, found := c.Lookup(logoBlur)
	assert.True(t, found)
}

func TestPopulateIdempotent(t *testing.T) {
	images := []optimizer.CachedImage{heroBlur, logoBlur, heroResize}

	c := NewCache()
	_, err := Populate(context.Background(), c, svgEngine(), images)
	require.NoError(t, err)
	first := c.Snapshot()

	res, err := Populate(context.Background(), c, svgEngine(), images)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, first, c.Snapshot())

	fresh := NewCache()
	_, err = Populate(context.Background(), fresh, svgEngine(), images)
	require.NoError(t, err)
	assert.Equal(t, first, fresh.Snapshot())
}

func TestPopulateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Populate(ctx, NewCache(), svgEngine(), []optimizer.CachedImage{heroBlur})
	assert.ErrorIs(t, err, context.Canceled)
}
