package tool

import "testing"

func TestJoinBase(t *testing.T) {
	cases := map[[2]string]string{
		{"http://a:8080", "/status"}:  "http://a:8080/status",
		{"http://a:8080/", "/status"}: "http://a:8080/status",
		{"http://a:8080", "rx/peers"}: "http://a:8080/rx/peers",
	}
	for in, want := range cases {
		if got := JoinBase(in[0], in[1]); got != want {
			t.Errorf("JoinBase(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestHostOf(t *testing.T) {
	host, err := HostOf("http://intercom-a.local:8080")
	if err != nil || host != "intercom-a.local" {
		t.Errorf("HostOf = %q, %v", host, err)
	}
	if _, err := HostOf("not a url"); err == nil {
		t.Error("expected error for base without host")
	}
}
