package tool

import (
	"crypto/tls"
	"net/http"
	"time"
)

var (
	DefaultTimeout = 10 * time.Second
	// DownloadTimeout covers the mix download, which can be a long WAV file.
	DownloadTimeout = 5 * time.Minute
)

// NewHTTPClient creates the client used against the collaborator.
// insecure skips certificate verification for devices serving self-signed HTTPS.
func NewHTTPClient(insecure bool) *http.Client {
	return newHTTPClient(insecure, DefaultTimeout)
}

// NewDownloadHTTPClient is NewHTTPClient with a timeout suited to binary payloads.
func NewDownloadHTTPClient(insecure bool) *http.Client {
	return newHTTPClient(insecure, DownloadTimeout)
}

func newHTTPClient(insecure bool, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewHTTPReqWithApplication sets the JSON headers and disables caching on a freshly built request.
func NewHTTPReqWithApplication(req *http.Request, err error) (*http.Request, error) {
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")
	return req, nil
}
