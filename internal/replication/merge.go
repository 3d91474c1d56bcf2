package replication

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// Stream is a pull-style sequence. Next returns io.EOF when the stream is
// exhausted.
type Stream[T any] interface {
	Next(ctx context.Context) (T, error)
}

// StreamFunc adapts a function to Stream.
type StreamFunc[T any] func(ctx context.Context) (T, error)

func (f StreamFunc[T]) Next(ctx context.Context) (T, error) {
	return f(ctx)
}

// ChanStream reads from ch until it is closed.
func ChanStream[T any](ch <-chan T) Stream[T] {
	return StreamFunc[T](func(ctx context.Context) (T, error) {
		var zero T
		select {
		case v, ok := <-ch:
			if !ok {
				return zero, io.EOF
			}
			return v, nil
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	})
}

// Tagged is one merged value with the key of the stream it came from.
type Tagged[K comparable, T any] struct {
	Key   K
	Value T
}

type mergeConfig struct {
	onError func(key any, err error)
}

type MergeOption func(*mergeConfig)

// OnSourceError is called when a source fails with anything other than
// io.EOF. The failed source is dropped and the merge carries on with the
// remaining ones.
func OnSourceError(fn func(key any, err error)) MergeOption {
	return func(c *mergeConfig) { c.onError = fn }
}

// Merge fans the streams into one channel. Each source has exactly one Next
// call in flight and is re-armed only after its value has been delivered, so
// per-source order is kept while sources race each other. The output is
// closed after every source has finished or ctx is done. Callers that stop
// reading must cancel ctx.
func Merge[K comparable, T any](ctx context.Context, streams map[K]Stream[T], opts ...MergeOption) <-chan Tagged[K, T] {
	cfg := mergeConfig{
		onError: func(key any, err error) {
			slog.Warn("merge source failed, dropping it", "source", key, "error", err)
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	out := make(chan Tagged[K, T])

	var wg sync.WaitGroup
	for key, stream := range streams {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, err := stream.Next(ctx)
				if err != nil {
					if !errors.Is(err, io.EOF) && ctx.Err() == nil {
						cfg.onError(key, err)
					}
					return
				}

				select {
				case out <- Tagged[K, T]{Key: key, Value: v}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
