package provider

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"strings"

	"tileview/internal/tile"
)

const defaultUserAgent = "tileview/1.0"

// HTTPTransport fetches tiles from a z/x/y tile server. The URL template uses
// {z}, {x} and {y} placeholders, e.g.
// "https://tile.openstreetmap.org/{z}/{x}/{y}.png".
type HTTPTransport struct {
	urlTemplate string
	userAgent   string
	client      *http.Client
}

func NewHTTPTransport(urlTemplate, userAgent string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPTransport{
		urlTemplate: urlTemplate,
		userAgent:   userAgent,
		client:      client,
	}
}

// URL expands the template for one tile. The coordinate is floored first so
// fractional addresses never leak into a request path.
func (t *HTTPTransport) URL(coord tile.Coordinate) string {
	floored := coord.Floored()
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(int(floored.Zoom)),
		"{x}", strconv.Itoa(int(floored.Column)),
		"{y}", strconv.Itoa(int(floored.Row)),
	)
	return r.Replace(t.urlTemplate)
}

func (t *HTTPTransport) Fetch(ctx context.Context, coord tile.Coordinate) (image.Image, error) {
	url := t.URL(coord)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tile request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "image/png,image/jpeg,image/webp,*/*")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile %s: %w", coord, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for tile %s", resp.StatusCode, coord)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile %s: %w", coord, err)
	}
	return img, nil
}
