// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package mediaserver is the REST client for the host media server's
// Items API. It backs library enumeration for the scheduled sync passes
// and single-item lookup for the HTTP API.
package mediaserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/scrobblarr/scrobblarr/internal/config"
	"github.com/scrobblarr/scrobblarr/internal/host"
	"github.com/scrobblarr/scrobblarr/internal/models"
)

// itemFields is requested on every Items query so conversions see paths
// and provider ids.
const itemFields = "Path,ProviderIds,ProductionYear"

// Client queries the media server REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Ensure Client implements the library surface.
var _ host.LibraryBrowser = (*Client)(nil)

// NewClient creates a media server client from configuration.
func NewClient(cfg *config.MediaServerConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// itemsResponse is the Items endpoint envelope.
type itemsResponse struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// Ping tests connectivity to the media server.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.get(ctx, "/System/Ping", nil)
	if err != nil {
		return fmt.Errorf("media server ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("media server ping returned status %d", resp.StatusCode)
	}
	return nil
}

// RecursiveItems enumerates every movie and episode in the library.
// Series containers come back in the same listing but are used only to
// join their provider ids onto the episode back-references.
func (c *Client) RecursiveItems(ctx context.Context) ([]*models.LibraryItem, error) {
	wire, err := c.queryItems(ctx, url.Values{
		"Recursive":        []string{"true"},
		"IncludeItemTypes": []string{"Movie,Episode,Series"},
		"Fields":           []string{itemFields},
	})
	if err != nil {
		return nil, err
	}

	seriesRefs := make(map[string]*models.SeriesRef)
	for i := range wire {
		if wire[i].Kind() == models.KindSeries {
			seriesRefs[wire[i].ID] = wire[i].SeriesRef()
		}
	}

	items := make([]*models.LibraryItem, 0, len(wire))
	for i := range wire {
		if wire[i].Kind() == models.KindSeries {
			continue
		}
		items = append(items, wire[i].ToLibraryItem(seriesRefs[wire[i].SeriesID]))
	}
	return items, nil
}

// ItemByID looks up a single library item. Unknown ids return nil, nil.
func (c *Client) ItemByID(ctx context.Context, id string) (*models.LibraryItem, error) {
	wire, err := c.queryItems(ctx, url.Values{
		"Ids":    []string{id},
		"Fields": []string{itemFields},
	})
	if err != nil {
		return nil, err
	}
	if len(wire) == 0 {
		return nil, nil
	}

	item := &wire[0]
	var series *models.SeriesRef
	if item.Kind() == models.KindEpisode && item.SeriesID != "" {
		series, err = c.seriesRef(ctx, item.SeriesID)
		if err != nil {
			return nil, err
		}
	}
	return item.ToLibraryItem(series), nil
}

// seriesRef fetches one series item to obtain its provider ids.
func (c *Client) seriesRef(ctx context.Context, seriesID string) (*models.SeriesRef, error) {
	wire, err := c.queryItems(ctx, url.Values{
		"Ids":    []string{seriesID},
		"Fields": []string{itemFields},
	})
	if err != nil {
		return nil, err
	}
	if len(wire) == 0 {
		return nil, nil
	}
	return wire[0].SeriesRef(), nil
}

func (c *Client) queryItems(ctx context.Context, query url.Values) ([]Item, error) {
	resp, err := c.get(ctx, "/Items", query)
	if err != nil {
		return nil, fmt.Errorf("media server items request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("media server items returned status %d: %s", resp.StatusCode, string(body))
	}

	var envelope itemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode media server items: %w", err)
	}
	return envelope.Items, nil
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	if query == nil {
		query = url.Values{}
	}
	if c.apiKey != "" {
		query.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}
