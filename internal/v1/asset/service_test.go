package asset

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidAvatarServer(c color.RGBA, hits *int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt64(hits, 1)
		}
		img := image.NewRGBA(image.Rect(0, 0, 32, 32))
		for y := 0; y < 32; y++ {
			for x := 0; x < 32; x++ {
				img.SetRGBA(x, y, c)
			}
		}
		var buf bytes.Buffer
		_ = png.Encode(&buf, img)
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}))
}

func TestGetOrBuild_CachesResult(t *testing.T) {
	var hits int64
	srv := solidAvatarServer(color.RGBA{R: 200, G: 50, B: 50, A: 255}, &hits)
	defer srv.Close()

	svc := NewService(8, 16, nil)
	v1, err := svc.GetOrBuild(context.Background(), "guild-1", "user-1", srv.URL)
	require.NoError(t, err)
	require.NotNil(t, v1)
	assert.Equal(t, 16, v1.Bitmap.Bounds().Dx())

	v2, err := svc.GetOrBuild(context.Background(), "guild-1", "user-1", srv.URL)
	require.NoError(t, err)
	assert.Same(t, v1, v2)
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))
}

func TestGetOrBuild_CoalescesConcurrentMisses(t *testing.T) {
	var hits int64
	srv := solidAvatarServer(color.RGBA{R: 20, G: 120, B: 220, A: 255}, &hits)
	defer srv.Close()

	svc := NewService(8, 16, nil)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.GetOrBuild(context.Background(), "guild-1", "user-coalesce", srv.URL)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits), "K concurrent misses must issue exactly one HTTP request")
}

func TestGetOrBuild_NetworkErrorNotCached(t *testing.T) {
	svc := NewService(8, 16, nil)
	_, err := svc.GetOrBuild(context.Background(), "guild-1", "user-bad", "http://127.0.0.1:0/nope")
	assert.Error(t, err)

	_, ok := svc.lookup(cacheKey{GuildID: "guild-1", UserID: "user-bad"})
	assert.False(t, ok)
}

func TestService_EvictsLeastRecentlyUsed(t *testing.T) {
	var hits int64
	srv := solidAvatarServer(color.RGBA{R: 1, G: 2, B: 3, A: 255}, &hits)
	defer srv.Close()

	svc := NewService(2, 8, nil)
	ctx := context.Background()
	_, err := svc.GetOrBuild(ctx, "g", "a", srv.URL)
	require.NoError(t, err)
	_, err = svc.GetOrBuild(ctx, "g", "b", srv.URL)
	require.NoError(t, err)
	_, err = svc.GetOrBuild(ctx, "g", "c", srv.URL)
	require.NoError(t, err)

	_, ok := svc.lookup(cacheKey{GuildID: "g", UserID: "a"})
	assert.False(t, ok, "least recently used entry should have been evicted")
	_, ok = svc.lookup(cacheKey{GuildID: "g", UserID: "c"})
	assert.True(t, ok)
}
