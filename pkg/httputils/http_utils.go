package httputils

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// MaxImageBytes caps the size of a fetched image.
const MaxImageBytes = 20 << 20

// FetchBytes downloads the body at url. The request is bounded by ctx and by the client's timeout.
func FetchBytes(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download %s, received status code: %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	if len(body) > MaxImageBytes {
		return nil, "", fmt.Errorf("image at %s exceeds %d bytes", url, MaxImageBytes)
	}

	return body, resp.Header.Get("Content-Type"), nil
}
