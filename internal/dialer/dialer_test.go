package dialer_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankli0324/go-fetchstream/internal/dialer"
	"github.com/frankli0324/go-fetchstream/internal/model"
	"github.com/frankli0324/go-fetchstream/internal/wire"
)

func prepare(t *testing.T, rawURL string) *model.PreparedRequest {
	t.Helper()
	pr, err := (&model.Request{Method: "GET", URL: rawURL}).Prepare()
	require.NoError(t, err)
	return pr
}

func roundTrip(t *testing.T, conn net.Conn, pr *model.PreparedRequest) string {
	t.Helper()
	require.NoError(t, wire.Write(conn, pr))
	resp := &wire.Response{}
	require.NoError(t, wire.Read(conn, pr.Method, resp))
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func hello(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "hello from "+r.Host)
}

func TestDialPlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(hello))
	defer srv.Close()

	pr := prepare(t, srv.URL)
	conn, err := dialer.Default().Dial(context.Background(), pr)
	require.NoError(t, err)
	assert.False(t, dialer.IsH2(conn))
	assert.Equal(t, "hello from "+pr.HeaderHost, roundTrip(t, conn, pr))
}

func TestDialStaticHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(hello))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)

	d := dialer.Default()
	d.ResolveConfig = &dialer.ResolveConfig{
		StaticHosts: map[string]string{"fetchstream.invalid": u.Hostname()},
	}
	pr := prepare(t, "http://fetchstream.invalid:"+u.Port()+"/")
	conn, err := d.Dial(context.Background(), pr)
	require.NoError(t, err)
	assert.Equal(t, "hello from fetchstream.invalid:"+u.Port(), roundTrip(t, conn, pr))
}

func TestDialTLSNegotiatesH2(t *testing.T) {
	srv := httptest.NewUnstartedServer(http.HandlerFunc(hello))
	srv.EnableHTTP2 = true
	srv.StartTLS()
	defer srv.Close()

	d := dialer.Default()
	d.TLSConfig.RootCAs = srv.Client().Transport.(*http.Transport).TLSClientConfig.RootCAs
	conn, err := d.Dial(context.Background(), prepare(t, srv.URL))
	require.NoError(t, err)
	defer conn.Close()
	assert.True(t, dialer.IsH2(conn))
}

// connectProxy accepts CONNECT requests and splices them to the target.
func connectProxy(t *testing.T, seen *atomic.Value) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				req, err := http.ReadRequest(bufio.NewReader(c))
				if err != nil || req.Method != "CONNECT" {
					return
				}
				seen.Store(req.Host + "|" + req.Header.Get("Proxy-Authorization"))
				upstream, err := net.Dial("tcp", req.Host)
				if err != nil {
					io.WriteString(c, "HTTP/1.1 502 Bad Gateway\r\nContent-Length: 0\r\n\r\n")
					return
				}
				defer upstream.Close()
				io.WriteString(c, "HTTP/1.1 200 Connection Established\r\n\r\n")
				go io.Copy(upstream, c)
				io.Copy(c, upstream)
			}(c)
		}
	}()
	return "http://user:pass@" + ln.Addr().String()
}

func TestDialOverProxy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(hello))
	defer srv.Close()

	var seen atomic.Value
	proxy := connectProxy(t, &seen)
	d := dialer.Default()
	d.GetProxy = func(ctx context.Context, r *model.Request) (string, error) {
		return proxy, nil
	}
	pr := prepare(t, srv.URL)
	conn, err := d.Dial(context.Background(), pr)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(roundTrip(t, conn, pr), "hello from"))

	target, auth, _ := strings.Cut(seen.Load().(string), "|")
	assert.Equal(t, pr.U.Host, target)
	assert.Equal(t, "Basic dXNlcjpwYXNz", auth)
}

func TestUnsupportedProxyScheme(t *testing.T) {
	d := dialer.Default()
	d.GetProxy = func(ctx context.Context, r *model.Request) (string, error) {
		return "socks5://127.0.0.1:1", nil
	}
	_, err := d.Dial(context.Background(), prepare(t, "http://example.com/"))
	assert.ErrorContains(t, err, "unsupported proxy scheme")
}

func TestResolveConfigMerge(t *testing.T) {
	var nilCfg *dialer.ResolveConfig
	assert.Nil(t, nilCfg.Merge(nil))

	c := &dialer.ResolveConfig{StaticHosts: map[string]string{"a": "1"}}
	m := c.Merge(&dialer.ResolveConfig{
		Network:     "ip4",
		StaticHosts: map[string]string{"a": "2", "b": "3"},
	})
	assert.Equal(t, "ip4", m.Network)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, m.StaticHosts)
	assert.Equal(t, map[string]string{"a": "1"}, c.StaticHosts)
}

func TestCore(t *testing.T) {
	cd := dialer.Default()
	assert.Same(t, cd, dialer.Core(cd))
	assert.Nil(t, dialer.Core(nil))
}
