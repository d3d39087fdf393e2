package catalog

import (
	"context"
	"fmt"
)

// Song is one related/continuation item returned by the next endpoint.
type Song struct {
	VideoID      string
	Title        string
	ArtistsText  string
	DurationText string
	ArtworkURL   string
	Explicit     bool
}

// NextPage is a page of continuation tracks plus the token for the next one.
type NextPage struct {
	PlaylistID   string
	Params       string
	Songs        []Song
	Continuation string
}

type nextBody struct {
	Context    requestContext `json:"context"`
	VideoID    string         `json:"videoId,omitempty"`
	PlaylistID string         `json:"playlistId,omitempty"`
	Params     string         `json:"params,omitempty"`
}

type continuationBody struct {
	Context      requestContext `json:"context"`
	Continuation string         `json:"continuation"`
}

// The renderer tree, reduced to the fields the player consumes.
type nextResponse struct {
	Contents *struct {
		SingleColumnMusicWatchNextResultsRenderer *struct {
			TabbedRenderer *struct {
				WatchNextTabbedResultsRenderer *struct {
					Tabs []struct {
						TabRenderer *struct {
							Content *struct {
								MusicQueueRenderer *struct {
									Content *struct {
										PlaylistPanelRenderer *playlistPanelRenderer `json:"playlistPanelRenderer"`
									} `json:"content"`
								} `json:"musicQueueRenderer"`
							} `json:"content"`
						} `json:"tabRenderer"`
					} `json:"tabs"`
				} `json:"watchNextTabbedResultsRenderer"`
			} `json:"tabbedRenderer"`
		} `json:"singleColumnMusicWatchNextResultsRenderer"`
	} `json:"contents"`
}

type continuationResponse struct {
	ContinuationContents *struct {
		PlaylistPanelContinuation *playlistPanelRenderer `json:"playlistPanelContinuation"`
	} `json:"continuationContents"`
}

type playlistPanelRenderer struct {
	Contents []struct {
		PlaylistPanelVideoRenderer *struct {
			VideoID         string            `json:"videoId"`
			Title           runs              `json:"title"`
			ShortBylineText runs              `json:"shortBylineText"`
			LengthText      runs              `json:"lengthText"`
			Thumbnail       thumbnailRenderer `json:"thumbnail"`
			Badges         []struct {
				MusicInlineBadgeRenderer *struct {
					Icon struct {
						IconType string `json:"iconType"`
					} `json:"icon"`
				} `json:"musicInlineBadgeRenderer"`
			} `json:"badges"`
		} `json:"playlistPanelVideoRenderer"`
		AutomixPreviewVideoRenderer *struct {
			Content *struct {
				AutomixPlaylistVideoRenderer *struct {
					NavigationEndpoint *struct {
						WatchPlaylistEndpoint *struct {
							PlaylistID string `json:"playlistId"`
							Params     string `json:"params"`
						} `json:"watchPlaylistEndpoint"`
					} `json:"navigationEndpoint"`
				} `json:"automixPlaylistVideoRenderer"`
			} `json:"content"`
		} `json:"automixPreviewVideoRenderer"`
	} `json:"contents"`
	Continuations []struct {
		NextContinuationData *struct {
			Continuation string `json:"continuation"`
		} `json:"nextContinuationData"`
	} `json:"continuations"`
}

func (p *playlistPanelRenderer) toPage() *NextPage {
	if p == nil {
		return &NextPage{}
	}
	page := &NextPage{}
	for _, c := range p.Contents {
		r := c.PlaylistPanelVideoRenderer
		if r == nil || r.VideoID == "" {
			continue
		}
		explicit := false
		for _, b := range r.Badges {
			if b.MusicInlineBadgeRenderer != nil &&
				b.MusicInlineBadgeRenderer.Icon.IconType == "MUSIC_EXPLICIT_BADGE" {
				explicit = true
			}
		}
		page.Songs = append(page.Songs, Song{
			VideoID:      r.VideoID,
			Title:        r.Title.text(),
			ArtistsText:  r.ShortBylineText.text(),
			DurationText: r.LengthText.text(),
			ArtworkURL:   r.Thumbnail.best(),
			Explicit:     explicit,
		})
	}
	if len(p.Continuations) > 0 && p.Continuations[0].NextContinuationData != nil {
		page.Continuation = p.Continuations[0].NextContinuationData.Continuation
	}
	return page
}

func (r *nextResponse) panel() *playlistPanelRenderer {
	if r.Contents == nil ||
		r.Contents.SingleColumnMusicWatchNextResultsRenderer == nil ||
		r.Contents.SingleColumnMusicWatchNextResultsRenderer.TabbedRenderer == nil ||
		r.Contents.SingleColumnMusicWatchNextResultsRenderer.TabbedRenderer.WatchNextTabbedResultsRenderer == nil {
		return nil
	}
	tabs := r.Contents.SingleColumnMusicWatchNextResultsRenderer.TabbedRenderer.WatchNextTabbedResultsRenderer.Tabs
	if len(tabs) == 0 || tabs[0].TabRenderer == nil || tabs[0].TabRenderer.Content == nil ||
		tabs[0].TabRenderer.Content.MusicQueueRenderer == nil ||
		tabs[0].TabRenderer.Content.MusicQueueRenderer.Content == nil {
		return nil
	}
	return tabs[0].TabRenderer.Content.MusicQueueRenderer.Content.PlaylistPanelRenderer
}

// Next requests related items for a seed track/playlist. When the API only
// returns an automix endpoint it is followed once to obtain an actual page.
func (c *Client) Next(ctx context.Context, videoID, playlistID, params string) (*NextPage, error) {
	var out nextResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(nextBody{Context: defaultContext, VideoID: videoID, PlaylistID: playlistID, Params: params}).
		SetResult(&out).
		Post("/next")
	if err != nil {
		return nil, fmt.Errorf("next request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("next request returned status %d", resp.StatusCode())
	}

	panel := out.panel()

	// No playlist yet: follow the automix endpoint to a real radio playlist.
	if playlistID == "" && panel != nil {
		for _, content := range panel.Contents {
			a := content.AutomixPreviewVideoRenderer
			if a == nil || a.Content == nil || a.Content.AutomixPlaylistVideoRenderer == nil {
				continue
			}
			ep := a.Content.AutomixPlaylistVideoRenderer.NavigationEndpoint
			if ep != nil && ep.WatchPlaylistEndpoint != nil {
				return c.Next(ctx, videoID, ep.WatchPlaylistEndpoint.PlaylistID, ep.WatchPlaylistEndpoint.Params)
			}
		}
	}

	page := panel.toPage()
	page.PlaylistID = playlistID
	page.Params = params
	return page, nil
}

// Continuation requests the next page of a previously started radio.
func (c *Client) Continuation(ctx context.Context, token string) (*NextPage, error) {
	var out continuationResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(continuationBody{Context: defaultContext, Continuation: token}).
		SetResult(&out).
		Post("/next")
	if err != nil {
		return nil, fmt.Errorf("continuation request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("continuation request returned status %d", resp.StatusCode())
	}
	if out.ContinuationContents == nil {
		return &NextPage{}, nil
	}
	return out.ContinuationContents.PlaylistPanelContinuation.toPage(), nil
}
