package catalog

import (
	"context"
	"fmt"
)

// songFilterParams restricts search results to songs.
const songFilterParams = "EgWKAQIIAWoKEAkQBRAKEAMQBA%3D%3D"

type searchBody struct {
	Context requestContext `json:"context"`
	Query   string         `json:"query"`
	Params  string         `json:"params,omitempty"`
}

type searchResponse struct {
	Contents *struct {
		TabbedSearchResultsRenderer *struct {
			Tabs []struct {
				TabRenderer *struct {
					Content *struct {
						SectionListRenderer *struct {
							Contents []struct {
								MusicShelfRenderer *struct {
									Contents []struct {
										MusicResponsiveListItemRenderer *struct {
											PlaylistItemData *struct {
												VideoID string `json:"videoId"`
											} `json:"playlistItemData"`
											FlexColumns []struct {
												MusicResponsiveListItemFlexColumnRenderer *struct {
													Text runs `json:"text"`
												} `json:"musicResponsiveListItemFlexColumnRenderer"`
											} `json:"flexColumns"`
											Thumbnail *struct {
												MusicThumbnailRenderer *struct {
													Thumbnail thumbnailRenderer `json:"thumbnail"`
												} `json:"musicThumbnailRenderer"`
											} `json:"thumbnail"`
										} `json:"musicResponsiveListItemRenderer"`
									} `json:"contents"`
								} `json:"musicShelfRenderer"`
							} `json:"contents"`
						} `json:"sectionListRenderer"`
					} `json:"content"`
				} `json:"tabRenderer"`
			} `json:"tabs"`
		} `json:"tabbedSearchResultsRenderer"`
	} `json:"contents"`
}

// SearchSongs runs a song search and returns the matched items in order.
func (c *Client) SearchSongs(ctx context.Context, query string) ([]Song, error) {
	var out searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(searchBody{Context: defaultContext, Query: query, Params: songFilterParams}).
		SetResult(&out).
		Post("/search")
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search request returned status %d", resp.StatusCode())
	}

	var songs []Song
	if out.Contents == nil || out.Contents.TabbedSearchResultsRenderer == nil {
		return songs, nil
	}
	for _, tab := range out.Contents.TabbedSearchResultsRenderer.Tabs {
		if tab.TabRenderer == nil || tab.TabRenderer.Content == nil ||
			tab.TabRenderer.Content.SectionListRenderer == nil {
			continue
		}
		for _, section := range tab.TabRenderer.Content.SectionListRenderer.Contents {
			if section.MusicShelfRenderer == nil {
				continue
			}
			for _, item := range section.MusicShelfRenderer.Contents {
				r := item.MusicResponsiveListItemRenderer
				if r == nil || r.PlaylistItemData == nil || r.PlaylistItemData.VideoID == "" {
					continue
				}
				song := Song{VideoID: r.PlaylistItemData.VideoID}
				if len(r.FlexColumns) > 0 && r.FlexColumns[0].MusicResponsiveListItemFlexColumnRenderer != nil {
					song.Title = r.FlexColumns[0].MusicResponsiveListItemFlexColumnRenderer.Text.text()
				}
				if len(r.FlexColumns) > 1 && r.FlexColumns[1].MusicResponsiveListItemFlexColumnRenderer != nil {
					song.ArtistsText = r.FlexColumns[1].MusicResponsiveListItemFlexColumnRenderer.Text.text()
				}
				if r.Thumbnail != nil && r.Thumbnail.MusicThumbnailRenderer != nil {
					song.ArtworkURL = r.Thumbnail.MusicThumbnailRenderer.Thumbnail.best()
				}
				songs = append(songs, song)
			}
		}
	}
	return songs, nil
}
