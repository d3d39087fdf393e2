// Package catalog is the client for the undocumented music catalog API.
// Every field of every response is optional: the surface is a third-party
// internal API and absence must degrade gracefully, never panic.
package catalog

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the catalog's internal JSON API.
type Client struct {
	http *resty.Client
}

// requestContext is the client blob the API expects on every request body.
type requestContext struct {
	Client clientInfo `json:"client"`
}

type clientInfo struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
	Platform      string `json:"platform"`
	HL            string `json:"hl"`
}

var defaultContext = requestContext{
	Client: clientInfo{
		ClientName:    "ANDROID_MUSIC",
		ClientVersion: "5.28.1",
		Platform:      "MOBILE",
		HL:            "en",
	},
}

// NewClient creates a catalog client.
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Content-Type", "application/json")

	return &Client{http: http}
}

// SetBaseURL overrides the API base URL. Used by tests.
func (c *Client) SetBaseURL(url string) {
	c.http.SetBaseURL(url)
}

// runs is the repeated {text} fragment of the renderer tree.
type runs struct {
	Runs []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

func (r runs) text() string {
	if len(r.Runs) == 0 {
		return ""
	}
	return r.Runs[0].Text
}

type thumbnailRenderer struct {
	Thumbnails []struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"thumbnails"`
}

func (t thumbnailRenderer) best() string {
	url := ""
	maxW := -1
	for _, th := range t.Thumbnails {
		if th.Width > maxW {
			maxW = th.Width
			url = th.URL
		}
	}
	return url
}
