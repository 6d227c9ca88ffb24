// Package ipify asks a public echo service for the caller's address.
package ipify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const DefaultURL = "https://api.ipify.org?format=json"

type response struct {
	IP string `json:"ip"`
}

// Lookup implements contract.AddressLookup over HTTP.
// Both the JSON form {"ip": "..."} and a plain-text body are accepted.
type Lookup struct {
	client *fasthttp.Client
	url    string
}

func NewLookup(url string) *Lookup {
	if url == "" {
		url = DefaultURL
	}
	return &Lookup{client: &fasthttp.Client{Name: "ask-football"}, url: url}
}

func (l *Lookup) Lookup(ctx context.Context) (string, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(l.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json, text/plain")

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	if err := l.client.DoDeadline(req, resp, deadline); err != nil {
		return "", fmt.Errorf("ip lookup: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("ip lookup: unexpected status %d", resp.StatusCode())
	}
	return parse(resp.Body())
}

func parse(body []byte) (string, error) {
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "{") {
		var r response
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("ip lookup: %w", err)
		}
		text = strings.TrimSpace(r.IP)
	}
	if text == "" {
		return "", fmt.Errorf("ip lookup: empty address")
	}
	return text, nil
}
