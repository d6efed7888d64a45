package ytdl

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// MockHTTPClient is a mock HTTP client for testing
type MockHTTPClient struct {
	GetFunc func(url string) (*http.Response, error)
	calls   []string
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.calls = append(m.calls, req.URL.String())
	if m.GetFunc != nil {
		return m.GetFunc(req.URL.String())
	}
	return NewMockStatusResponse(http.StatusNotFound), nil
}

// NewMockReleaseResponse creates a mock GitHub release response
func NewMockReleaseResponse(tagName string, assetNames ...string) *http.Response {
	release := GitHubRelease{TagName: tagName}
	for _, name := range assetNames {
		release.Assets = append(release.Assets, ReleaseAsset{
			Name:               name,
			BrowserDownloadURL: "http://example.com/" + name,
		})
	}

	body, _ := json.Marshal(release)

	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

// NewMockBinaryResponse creates a mock binary download response
func NewMockBinaryResponse(data []byte) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(data)),
	}
}

// NewMockStatusResponse creates an empty response with status
func NewMockStatusResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}
}
