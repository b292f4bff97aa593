package device

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/moyoez/partyline-console/types"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, WithHTTPClient(srv.Client()), WithDownloadClient(srv.Client()))
}

func TestResolveBase(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{[]string{"http://a:8080/", "http://b"}, "http://a:8080"},
		{[]string{"", "  ", "intercom-b.local:8080"}, "http://intercom-b.local:8080"},
		{[]string{"", ""}, ""},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := ResolveBase(tc.in...); got != tc.want {
			t.Errorf("ResolveBase(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewEmptyBaseIsSameOrigin(t *testing.T) {
	c := New("")
	if c.Base() != "" || c.Origin() != SameOrigin {
		t.Errorf("base=%q origin=%q", c.Base(), c.Origin())
	}
}

func TestGetDecodesJSONByContentType(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cache-Control") == "" {
			t.Error("request did not disable caching")
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("request has no X-Request-Id")
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = io.WriteString(w, `{"tx_running":true}`)
	})
	p, err := c.Get(context.Background(), "/status")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	m, ok := p.JSON.(map[string]any)
	if !ok || m["tx_running"] != true {
		t.Errorf("JSON = %#v", p.JSON)
	}
	if p.Text != "" {
		t.Errorf("Text should be empty for JSON, got %q", p.Text)
	}
}

func TestGetReturnsTextForOtherContentTypes(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, `{"looks":"like json"}`)
	})
	p, err := c.Post(context.Background(), "/start/tx", nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if p.JSON != nil || p.Text != `{"looks":"like json"}` {
		t.Errorf("payload = %#v", p)
	}
	var out map[string]any
	err = p.Decode(&out)
	var decErr *DecodeError
	if !errors.As(err, &decErr) || !errors.Is(err, ErrNotJSON) {
		t.Errorf("Decode on text = %v", err)
	}
}

func TestPostSendsEmptyObjectForNilBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "{}" {
			t.Errorf("body = %q, want {}", body)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	if _, err := c.Post(context.Background(), "/restart", nil); err != nil {
		t.Fatalf("Post: %v", err)
	}
}

func TestTransportErrorCarriesSnippet(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "  pipeline busy \n")
	})
	_, err := c.Get(context.Background(), "/rx/metrics")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Method != http.MethodGet || te.Path != "/rx/metrics" || te.Status != 503 || te.Snippet != "pipeline busy" {
		t.Errorf("TransportError = %+v", te)
	}
	if err.Error() != "GET /rx/metrics -> 503: pipeline busy" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestTransportErrorWithUnreadableBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Promise more bytes than are sent so the body read fails.
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "partial")
	})
	_, err := c.Get(context.Background(), "/status")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Status != 500 || te.Snippet != "" {
		t.Errorf("TransportError = %+v", te)
	}
}

func TestDecodeErrorIsNotTransportError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"peers": [`)
	})
	_, err := c.Peers(context.Background())
	var de *DecodeError
	var te *TransportError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if errors.As(err, &te) {
		t.Error("DecodeError must not match TransportError")
	}
}

func TestTypedEndpoints(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case PathStatus:
			_, _ = io.WriteString(w, `{"config":{"tx_source":"sine","tx_sine_freq":800},"tx_running":false,"rx_running":true}`)
		case PathMetrics:
			_, _ = io.WriteString(w, `{"receiving":true,"pps_recent":50.0,"bps_recent":9800,"mix_level_db":-18.3,"group":"239.69.69.69","port":5004}`)
		case PathPeers:
			_, _ = io.WriteString(w, `{"peers":[{"ssrc":12345678,"name":"Unit A","packets":42,"level_db":-40,"last_seen_sec":0.2}]}`)
		case PathMicLevel:
			_, _ = io.WriteString(w, `{"db":null}`)
		case PathAlsaDevices:
			_, _ = io.WriteString(w, `{"devices":[{"id":"hw:1,0","desc":"USB"}],"recommended":"hw:1,0"}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.RunStatus() != (types.RunStatus{TxRunning: false, RxRunning: true}) || st.Config.SineFreq() != 800 {
		t.Errorf("status = %+v", st)
	}

	m, err := c.Metrics(ctx)
	if err != nil || m.MixLevelDB == nil || *m.MixLevelDB != -18.3 || m.Group != "239.69.69.69" {
		t.Errorf("metrics = %+v, %v", m, err)
	}

	p, err := c.Peers(ctx)
	if err != nil || len(p.Peers) != 1 || p.Peers[0].SSRC != 12345678 || p.MixLevelDB != nil {
		t.Errorf("peers = %+v, %v", p, err)
	}

	ml, err := c.MicLevel(ctx)
	if err != nil || ml.DB != nil {
		t.Errorf("mic level = %+v, %v", ml, err)
	}

	d, err := c.AlsaDevices(ctx)
	if err != nil || d.Recommended != "hw:1,0" || len(d.Devices) != 1 {
		t.Errorf("devices = %+v, %v", d, err)
	}
}

func TestSaveConfigPostsWholeObject(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		for _, key := range []string{`"tx_source"`, `"rx_sink"`, `"ssrc_names"`, `"tx_port"`} {
			if !strings.Contains(string(body), key) {
				t.Errorf("posted config lacks %s: %s", key, body)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"config":{"tx_name":"Echoed"}}`)
	})
	resp, err := c.SaveConfig(context.Background(), types.DefaultDeviceConfig())
	if err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if !resp.OK || resp.Config == nil || resp.Config.TxName != "Echoed" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDownloadErrors(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathDownloadMix {
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = io.WriteString(w, "RIFF....WAVE")
			return
		}
		http.Error(w, "no mix", http.StatusNotFound)
	})
	var sb strings.Builder
	n, err := c.Download(context.Background(), PathDownloadMix, &sb)
	if err != nil || n != 12 || sb.String() != "RIFF....WAVE" {
		t.Fatalf("Download = %d, %v, %q", n, err, sb.String())
	}

	_, err = c.Download(context.Background(), "/download/missing", io.Discard)
	var re *ResourceError
	if !errors.As(err, &re) || re.Status != http.StatusNotFound {
		t.Errorf("expected ResourceError 404, got %v", err)
	}
}
