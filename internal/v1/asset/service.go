package asset

import (
	"bytes"
	"container/list"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/callwatch/backend/internal/v1/metrics"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// Limiter is the subset of ratelimit.RateLimiter the asset service
// needs to throttle outbound avatar fetches.
type Limiter interface {
	AllowAvatarFetch(ctx context.Context) error
}

// entry is the value stored in the cache's backing list.
type entry struct {
	key    cacheKey
	visual *Visual
}

// Service is a bounded cache of Visuals keyed by (guild, user),
// request-coalesced and circuit-broken on its single upstream
// dependency: the chat platform's avatar CDN. Mirrors the single
// in-flight-per-key idiom used for the room registry, generalized from
// a map-of-timers to a map-of-futures via singleflight.
type Service struct {
	mu       sync.Mutex
	capacity int
	elements map[cacheKey]*list.Element
	order    *list.List // front = most recently used

	pixelSize int
	client    *http.Client
	limiter   Limiter
	group     singleflight.Group
	breaker   *gobreaker.CircuitBreaker
}

// NewService constructs a Service with the given cache capacity and
// square avatar pixel size. limiter may be nil to disable outbound
// throttling (used in tests).
func NewService(capacity, pixelSize int, limiter Limiter) *Service {
	if capacity <= 0 {
		capacity = 128
	}
	if pixelSize <= 0 {
		pixelSize = 64
	}

	st := gobreaker.Settings{
		Name:        "avatar-fetch",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("avatar-fetch").Set(stateVal)
		},
	}

	return &Service{
		capacity:  capacity,
		elements:  make(map[cacheKey]*list.Element),
		order:     list.New(),
		pixelSize: pixelSize,
		client:    &http.Client{Timeout: 10 * time.Second},
		limiter:   limiter,
		breaker:   gobreaker.NewCircuitBreaker(st),
	}
}

// GetOrBuild returns the cached Visual for (guildID, userID), building
// it from avatarURL on a cache miss. Concurrent misses for the same key
// collapse into a single in-flight build via singleflight so that K
// concurrent callers issue exactly one HTTP request.
func (s *Service) GetOrBuild(ctx context.Context, guildID, userID, avatarURL string) (*Visual, error) {
	key := cacheKey{GuildID: guildID, UserID: userID}

	if v, ok := s.lookup(key); ok {
		metrics.AssetCacheResults.WithLabelValues("hit").Inc()
		return v, nil
	}
	metrics.AssetCacheResults.WithLabelValues("miss").Inc()

	sfKey := guildID + "/" + userID
	result, err, _ := s.group.Do(sfKey, func() (interface{}, error) {
		if v, ok := s.lookup(key); ok {
			return v, nil
		}
		v, err := s.build(ctx, avatarURL)
		if err != nil {
			return nil, err
		}
		s.insert(key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Visual), nil
}

func (s *Service) lookup(key cacheKey) (*Visual, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.elements[key]
	if !ok {
		return nil, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*entry).visual, true
}

func (s *Service) insert(key cacheKey, visual *Visual) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.elements[key]; ok {
		el.Value.(*entry).visual = visual
		s.order.MoveToFront(el)
		return
	}

	el := s.order.PushFront(&entry{key: key, visual: visual})
	s.elements[key] = el

	if s.order.Len() > s.capacity {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.elements, oldest.Value.(*entry).key)
		}
	}
}

func (s *Service) build(ctx context.Context, avatarURL string) (*Visual, error) {
	start := time.Now()
	img, err := s.fetchAndDecode(ctx, avatarURL)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.AssetFetchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	resized := resizeLanczos3(img, s.pixelSize)
	active := dominantColor(resized)

	return &Visual{
		Bitmap:         resized,
		ActiveColor:    active,
		InactiveColor:  inactiveColor(active),
		StreamingColor: streamingColor(active),
	}, nil
}

func (s *Service) fetchAndDecode(ctx context.Context, avatarURL string) (image.Image, error) {
	if s.limiter != nil {
		if err := s.limiter.AllowAvatarFetch(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("avatar fetch: unexpected status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
		return body, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("avatar-fetch").Inc()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	body := result.([]byte)
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}
