package extractor

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	_ "github.com/bdandy/go-socks4"
	youtube "github.com/kkdai/youtube/v2"
	"golang.org/x/net/proxy"
)

const clientTimeout = 15 * time.Second

// newClient builds a YouTube client, routed through proxyStr when it parses.
// It returns the proxy actually used.
func newClient(proxyStr string) (*youtube.Client, string) {
	direct := &youtube.Client{HTTPClient: &http.Client{Timeout: clientTimeout}}
	if proxyStr == "" {
		return direct, ""
	}

	transport, err := proxyTransport(proxyStr)
	if err != nil {
		log.Printf("[WARN] [Extractor] Proxy %q unusable, connecting directly: %v", proxyStr, err)
		return direct, ""
	}

	log.Printf("[INFO] [Extractor] Using proxy %s", proxyStr)
	return &youtube.Client{
		HTTPClient: &http.Client{
			Timeout:   clientTimeout,
			Transport: transport,
		},
	}, proxyStr
}

// proxyTransport supports http(s) proxies directly and socks4/socks5 through
// x/net/proxy (socks4 is registered by go-socks4).
func proxyTransport(proxyStr string) (*http.Transport, error) {
	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		return nil, err
	}

	switch proxyURL.Scheme {
	case "http", "https":
		return &http.Transport{Proxy: http.ProxyURL(proxyURL)}, nil

	case "socks5":
		auth := &proxy.Auth{}
		if proxyURL.User != nil {
			auth.User = proxyURL.User.Username()
			if pass, ok := proxyURL.User.Password(); ok {
				auth.Password = pass
			}
		}
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return dialerTransport(dialer), nil

	case "socks4":
		dialer, err := proxy.FromURL(proxyURL, &net.Dialer{Timeout: 10 * time.Second})
		if err != nil {
			return nil, err
		}
		return dialerTransport(dialer), nil
	}

	return nil, &url.Error{Op: "proxy", URL: proxyStr, Err: ErrUnsupportedURL}
}

func dialerTransport(d proxy.Dialer) *http.Transport {
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := d.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return d.Dial(network, addr)
		},
	}
}
