package fetchstream_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/frankli0324/go-fetchstream"
	"github.com/frankli0324/go-fetchstream/internal/stream"
	"github.com/frankli0324/go-fetchstream/internal/testserver"
)

var strategies = []fetchstream.Strategy{
	fetchstream.StrategyNative,
	fetchstream.StrategyBinary,
	fetchstream.StrategyText,
}

func newClient(t *testing.T, srv *testserver.Server, s fetchstream.Strategy) *fetchstream.Client {
	t.Helper()
	env, err := fetchstream.NewEnvironment(&fetchstream.Config{Origin: srv.URL})
	require.NoError(t, err)
	c := &fetchstream.Client{Environment: env, TransportFactory: fetchstream.Force(s)}
	got, err := c.Strategy()
	require.NoError(t, err)
	require.Equal(t, s, got)
	return c
}

// forEach runs fn against a fresh server once per strategy.
func forEach(t *testing.T, fn func(t *testing.T, srv *testserver.Server, c *fetchstream.Client)) {
	for _, s := range strategies {
		s := s
		t.Run(s.String(), func(t *testing.T) {
			srv := testserver.New()
			defer srv.Close()
			fn(t, srv, newClient(t, srv, s))
		})
	}
}

func readAll(t *testing.T, body fetchstream.Body) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	chunks, err := stream.ReadAll(ctx, body)
	require.NoError(t, err)
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = string(c)
	}
	return out
}

func TestChunkPerServerWrite(t *testing.T) {
	forEach(t, func(t *testing.T, srv *testserver.Server, c *fetchstream.Client) {
		resp, err := c.Fetch(context.Background(), testserver.Path("send-chunks"), &fetchstream.Options{
			Method: "POST",
			Body:   `["chunk1","chunk2"]`,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"chunk1\n", "chunk2\n"}, readAll(t, resp.Body))
	})
}

func TestRoundTripIsByteExact(t *testing.T) {
	forEach(t, func(t *testing.T, srv *testserver.Server, c *fetchstream.Client) {
		resp, err := c.Fetch(context.Background(), srv.Srv("split-rune"), nil)
		require.NoError(t, err)
		assert.Equal(t, testserver.SplitRuneText, strings.Join(readAll(t, resp.Body), ""))
	})
}

func TestFetchSubset(t *testing.T) {
	forEach(t, func(t *testing.T, srv *testserver.Server, c *fetchstream.Client) {
		resp, err := c.Fetch(context.Background(), testserver.Path("echo"), nil)
		require.NoError(t, err)
		defer resp.Body.Cancel()
		assert.True(t, resp.OK)
		assert.Equal(t, 200, resp.Status)
		assert.Equal(t, "OK", resp.StatusText)
		assert.Equal(t, srv.Srv("echo"), resp.URL)
		assert.Equal(t, "fetchstream-testserver", resp.Headers.Get("X-Powered-By"))
	})
}

func TestServerErrorResolves(t *testing.T) {
	forEach(t, func(t *testing.T, srv *testserver.Server, c *fetchstream.Client) {
		resp, err := c.Fetch(context.Background(), srv.Srv("500"), nil)
		require.NoError(t, err)
		assert.False(t, resp.OK)
		assert.Equal(t, 500, resp.Status)
		assert.Equal(t, "Internal Server Error", resp.StatusText)
		assert.Equal(t, "Intentional server error", strings.Join(readAll(t, resp.Body), ""))
	})
}

func TestTruncatedBodyIsNetworkError(t *testing.T) {
	for _, method := range []string{"truncated", "truncated-chunked"} {
		method := method
		t.Run(method, func(t *testing.T) {
			forEach(t, func(t *testing.T, srv *testserver.Server, c *fetchstream.Client) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				resp, err := c.Fetch(ctx, srv.Srv(method), nil)
				require.NoError(t, err)
				assert.Equal(t, 200, resp.Status)

				chunks, err := stream.ReadAll(ctx, resp.Body)
				assert.ErrorIs(t, err, fetchstream.ErrNetwork)
				assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
				assert.NotErrorIs(t, err, fetchstream.ErrAborted)
				assert.True(t, strings.HasPrefix("abcde", string(bytes.Join(chunks, nil))))
			})
		})
	}
}

func echo(t *testing.T, resp *fetchstream.Response) testserver.Echo {
	t.Helper()
	var e testserver.Echo
	require.NoError(t, json.Unmarshal([]byte(strings.Join(readAll(t, resp.Body), "")), &e))
	return e
}

func TestSentValues(t *testing.T) {
	forEach(t, func(t *testing.T, srv *testserver.Server, c *fetchstream.Client) {
		resp, err := c.Fetch(context.Background(), srv.Srv("echo"), &fetchstream.Options{
			Method:  "POST",
			Body:    "hello world",
			Headers: fetchstream.NewHeaders(fetchstream.Field{Key: "X-Foo", Value: "expected"}),
		})
		require.NoError(t, err)
		e := echo(t, resp)
		assert.Equal(t, "POST", e.Method)
		assert.Equal(t, "hello world", e.Body)
		assert.Equal(t, "expected", e.Headers["x-foo"])
	})
}

func TestCookiesWithCredentials(t *testing.T) {
	forEach(t, func(t *testing.T, srv *testserver.Server, c *fetchstream.Client) {
		resp, err := c.Fetch(context.Background(), srv.Srv("set-cookie&name=myCookie&value=myValue"), &fetchstream.Options{
			Credentials: fetchstream.CredentialsInclude,
		})
		require.NoError(t, err)
		readAll(t, resp.Body)

		resp, err = c.Fetch(context.Background(), srv.Srv("echo"), &fetchstream.Options{
			Credentials: fetchstream.CredentialsInclude,
		})
		require.NoError(t, err)
		assert.Equal(t, "myValue", echo(t, resp).Cookies["myCookie"])
	})
}

func TestCancelClosesConnection(t *testing.T) {
	forEach(t, func(t *testing.T, srv *testserver.Server, c *fetchstream.Client) {
		srv.ChunkInterval = time.Second
		resp, err := c.Fetch(context.Background(), srv.Srv("send-chunks"), &fetchstream.Options{
			Method: "POST",
			Body:   `["chunk1","chunk2","chunk3"]`,
		})
		require.NoError(t, err)
		chunk, err := resp.Body.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "chunk1\n", string(chunk))

		require.NoError(t, resp.Body.Cancel())
		_, err = resp.Body.Next(context.Background())
		assert.ErrorIs(t, err, fetchstream.ErrAborted)
		assert.True(t, srv.LastRequestClosed(5*time.Second))
	})
}

func TestContextCancelledMidStream(t *testing.T) {
	forEach(t, func(t *testing.T, srv *testserver.Server, c *fetchstream.Client) {
		srv.ChunkInterval = time.Second
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		resp, err := c.Fetch(ctx, srv.Srv("send-chunks"), &fetchstream.Options{
			Method: "POST",
			Body:   `["chunk1","chunk2","chunk3"]`,
		})
		require.NoError(t, err)
		_, err = resp.Body.Next(context.Background())
		require.NoError(t, err)

		cancel()
		_, err = resp.Body.Next(context.Background())
		assert.ErrorIs(t, err, fetchstream.ErrAborted)
		assert.NotErrorIs(t, err, fetchstream.ErrNetwork)

		probe, err := c.Fetch(context.Background(), srv.Srv("last-request-closed"), nil)
		require.NoError(t, err)
		var closed struct{ Value bool }
		require.NoError(t, json.Unmarshal([]byte(strings.Join(readAll(t, probe.Body), "")), &closed))
		assert.True(t, closed.Value)
	})
}

func TestAlreadyCancelled(t *testing.T) {
	forEach(t, func(t *testing.T, srv *testserver.Server, c *fetchstream.Client) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		resp, err := c.Fetch(ctx, srv.Srv("send-chunks"), &fetchstream.Options{
			Method: "POST",
			Body:   `["chunk1"]`,
		})
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, fetchstream.ErrAborted)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGetWithBody(t *testing.T) {
	forEach(t, func(t *testing.T, srv *testserver.Server, c *fetchstream.Client) {
		_, err := c.Fetch(context.Background(), srv.Srv("echo"), &fetchstream.Options{Body: "x"})
		assert.ErrorIs(t, err, fetchstream.ErrInvalidRequest)
		assert.ErrorIs(t, err, fetchstream.ErrGetWithBody)
	})
}

func TestTextDecodesCharset(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()
	c := newClient(t, srv, fetchstream.StrategyText)

	resp, err := c.Fetch(context.Background(), srv.Srv("charset&charset=iso-8859-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, testserver.CharsetText, strings.Join(readAll(t, resp.Body), ""))
}

func TestDetectionRunsOnce(t *testing.T) {
	var calls atomic.Int32
	c := &fetchstream.Client{
		Environment: &fetchstream.Environment{},
		TransportFactory: func(env *fetchstream.Environment) (fetchstream.Strategy, fetchstream.Transport, error) {
			calls.Add(1)
			return fetchstream.StrategyText, func(ctx context.Context, url string, opts *fetchstream.Options) (*fetchstream.Response, error) {
				return &fetchstream.Response{Status: 204, URL: url}, nil
			}, nil
		},
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Fetch(context.Background(), "http://example.com/", nil)
			assert.NoError(t, err)
			assert.Equal(t, 204, resp.Status)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

func TestTransportOverride(t *testing.T) {
	c := &fetchstream.Client{
		TransportFactory: func(*fetchstream.Environment) (fetchstream.Strategy, fetchstream.Transport, error) {
			t.Error("detection must be bypassed")
			return 0, nil, nil
		},
	}
	var gotURL string
	resp, err := c.Fetch(context.Background(), "http://example.com/x", &fetchstream.Options{
		Transport: func(ctx context.Context, url string, opts *fetchstream.Options) (*fetchstream.Response, error) {
			gotURL = url
			return &fetchstream.Response{Status: 418, StatusText: "I'm a teapot"}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 418, resp.Status)
	assert.Equal(t, "http://example.com/x", gotURL)
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) fetchstream.Middleware {
		return func(next fetchstream.Transport) fetchstream.Transport {
			return func(ctx context.Context, url string, opts *fetchstream.Options) (*fetchstream.Response, error) {
				order = append(order, name)
				return next(ctx, url, opts)
			}
		}
	}
	c := &fetchstream.Client{
		TransportFactory: func(*fetchstream.Environment) (fetchstream.Strategy, fetchstream.Transport, error) {
			return fetchstream.StrategyNative, func(context.Context, string, *fetchstream.Options) (*fetchstream.Response, error) {
				order = append(order, "transport")
				return &fetchstream.Response{}, nil
			}, nil
		},
	}
	c.Use(mw("first"), mw("second"))
	_, err := c.Fetch(context.Background(), "http://example.com/", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first", "transport"}, order)
}

func TestSelectionIsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	srv := testserver.New()
	defer srv.Close()
	env, err := fetchstream.NewEnvironment(&fetchstream.Config{Origin: srv.URL, DisableNative: true})
	require.NoError(t, err)
	c := &fetchstream.Client{Environment: env, Logger: zap.New(core)}

	s, err := c.Strategy()
	require.NoError(t, err)
	assert.Equal(t, fetchstream.StrategyBinary, s)

	_, err = c.Fetch(context.Background(), srv.Srv("echo"), &fetchstream.Options{Body: "x"})
	require.Error(t, err)

	selected := logs.FilterMessage("transport selected").All()
	require.Len(t, selected, 1)
	assert.Equal(t, zap.InfoLevel, selected[0].Level)
	assert.Equal(t, 1, logs.FilterMessage("request failed").Len())
}

func TestNoTransport(t *testing.T) {
	c := &fetchstream.Client{Environment: &fetchstream.Environment{}}
	_, err := c.Fetch(context.Background(), "http://example.com/", nil)
	assert.Error(t, err)
}
