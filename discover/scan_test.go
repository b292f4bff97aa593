package discover

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func listenPort(t *testing.T, h http.HandlerFunc) int {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	n, _ := strconv.Atoi(port)
	return n
}

func TestScanFindsIntercom(t *testing.T) {
	port := listenPort(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"config":{"tx_name":"Booth","tx_source":"mic","tx_multicast":"239.69.69.69","tx_port":5004},"tx_running":true,"rx_running":false}`)
	})

	units, err := Scan(context.Background(), []string{"127.0.0.1"}, Options{Port: port})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("units = %+v", units)
	}
	u := units[0]
	if u.Name != "Booth" || u.Source != "mic" || u.Port != 5004 || !u.TxRunning || u.RxRunning {
		t.Errorf("unit = %+v", u)
	}
	if u.Origin != "http://127.0.0.1:"+strconv.Itoa(port) {
		t.Errorf("origin = %q", u.Origin)
	}
}

func TestScanSkipsOtherServers(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"text": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, "hello")
		},
		"json without config": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"status":"ok"}`)
		},
		"error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			port := listenPort(t, h)
			units, err := Scan(context.Background(), []string{"127.0.0.1"}, Options{Port: port})
			if err != nil || len(units) != 0 {
				t.Errorf("units = %+v, err = %v", units, err)
			}
		})
	}
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	units, err := Scan(ctx, []string{"127.0.0.1", "127.0.0.2"}, Options{Port: 1, RatePPS: 1})
	if err == nil {
		t.Error("expected context error")
	}
	if len(units) != 0 {
		t.Errorf("units = %+v", units)
	}
}

func TestNetworkIPs(t *testing.T) {
	_, n24, _ := net.ParseCIDR("192.168.4.17/24")
	ips := networkIPs(n24)
	if len(ips) != 254 || ips[0] != "192.168.4.1" || ips[253] != "192.168.4.254" {
		t.Errorf("/24: %d ips, first %s", len(ips), ips[0])
	}

	_, n29, _ := net.ParseCIDR("10.0.0.9/29")
	ips = networkIPs(n29)
	if len(ips) != 6 || ips[0] != "10.0.0.9" || ips[5] != "10.0.0.14" {
		t.Errorf("/29 = %v", ips)
	}

	_, n16, _ := net.ParseCIDR("172.16.0.0/16")
	ips = networkIPs(n16)
	if len(ips) != maxHostsPerNet || ips[253] != "172.16.0.254" {
		t.Errorf("/16: %d ips, last %s", len(ips), ips[len(ips)-1])
	}

	_, n32, _ := net.ParseCIDR("10.1.1.1/32")
	if ips := networkIPs(n32); len(ips) != 0 {
		t.Errorf("/32 = %v", ips)
	}
}
