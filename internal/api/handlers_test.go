package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videograb/internal/extractor"
	"videograb/pkg/models"
)

var testInfo = &extractor.RawInfo{
	Title:     "Test Video",
	Thumbnail: "https://example.com/thumb.jpg",
	Formats: []extractor.RawFormat{
		{FormatID: "22", Ext: "mp4", VCodec: "avc1.64001F", ACodec: "mp4a.40.2", Resolution: "1280x720", FileSize: 2048},
		{FormatID: "137", Ext: "mp4", VCodec: "avc1.640028", ACodec: "none", Resolution: "1920x1080"},
		{FormatID: "18", Ext: "mp4", VCodec: "avc1.42001E", ACodec: "mp4a.40.2", Resolution: "640x360", FileSizeApprox: 1024},
		{FormatID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a.40.2", Resolution: "audio only"},
	},
}

func post(t *testing.T, ts *testServer, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func assertNoLeftovers(t *testing.T, ts *testServer) {
	t.Helper()

	work, err := os.ReadDir(ts.workRoot)
	require.NoError(t, err)
	assert.Empty(t, work, "working directories must be removed")
	assert.Empty(t, ts.area.ListEntries(), "held files must be removed")
}

func TestHandleAnalyze(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{info: testInfo})

	w := post(t, ts, "/analyze", `{"url":"https://www.youtube.com/watch?v=abc"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
		"title": "Test Video",
		"thumbnail": "https://example.com/thumb.jpg",
		"streams": [
			{"itag": "18", "quality": "360p", "mime_type": "video/mp4", "filesize": 1024},
			{"itag": "22", "quality": "720p", "mime_type": "video/mp4", "filesize": 2048}
		]
	}`, w.Body.String())
}

func TestHandleAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		ex         *stubExtractor
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing url",
			body:       `{}`,
			ex:         &stubExtractor{info: testInfo},
			wantStatus: http.StatusBadRequest,
			wantError:  "no URL provided",
		},
		{
			name:       "malformed json",
			body:       `{"url":`,
			ex:         &stubExtractor{info: testInfo},
			wantStatus: http.StatusBadRequest,
			wantError:  "JSON",
		},
		{
			name:       "empty body",
			body:       ``,
			ex:         &stubExtractor{info: testInfo},
			wantStatus: http.StatusBadRequest,
			wantError:  "JSON",
		},
		{
			name:       "option as url",
			body:       `{"url":"--exec=x"}`,
			ex:         &stubExtractor{info: testInfo},
			wantStatus: http.StatusBadRequest,
			wantError:  "http or https",
		},
		{
			name:       "non http url",
			body:       `{"url":"file:///etc/passwd"}`,
			ex:         &stubExtractor{info: testInfo},
			wantStatus: http.StatusBadRequest,
			wantError:  "http or https",
		},
		{
			name:       "discovery timeout",
			body:       `{"url":"https://example.com/v"}`,
			ex:         &stubExtractor{discoverErr: extractor.ErrTimeout},
			wantStatus: http.StatusRequestTimeout,
			wantError:  "too long",
		},
		{
			name:       "tool failure",
			body:       `{"url":"https://example.com/v"}`,
			ex:         &stubExtractor{discoverErr: &extractor.ToolError{ExitCode: 1, Stderr: "ERROR: secret stderr"}},
			wantStatus: http.StatusInternalServerError,
			wantError:  "could not be processed",
		},
		{
			name: "no playable stream",
			body: `{"url":"https://example.com/v"}`,
			ex: &stubExtractor{info: &extractor.RawInfo{Title: "x", Formats: []extractor.RawFormat{
				{FormatID: "137", Ext: "mp4", VCodec: "avc1", ACodec: "none", Resolution: "1920x1080"},
			}}},
			wantStatus: http.StatusNotFound,
			wantError:  "no playable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.ex)

			w := post(t, ts, "/analyze", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeError(t, w)
			assert.Contains(t, resp.Error, tt.wantError)
			assert.Empty(t, resp.Detail)
			assert.NotContains(t, w.Body.String(), "secret stderr")
		})
	}
}

func TestHandleAnalyzeExposesDiagnostics(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.ExposeDiagnostics = true
	ts := newTestServerWithConfig(t, &stubExtractor{
		discoverErr: &extractor.ToolError{ExitCode: 1, Stderr: "ERROR: Unsupported URL: https://example.com/v"},
	}, cfg)

	w := post(t, ts, "/analyze", `{"url":"https://example.com/v"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "the video source could not be processed", resp.Error)
	assert.Contains(t, resp.Detail, "Unsupported URL")
}

func TestHandleDownload(t *testing.T) {
	content := bytes.Repeat([]byte("frame"), 5000)
	ex := &stubExtractor{fetchName: "Test Video.mp4", fetchContent: content}
	ts := newTestServer(t, ex)

	w := post(t, ts, "/download", `{"url":"https://www.youtube.com/watch?v=abc","itag":"18"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, "25000", w.Header().Get("Content-Length"))
	assert.Equal(t,
		`attachment; filename="Test Video.mp4"; filename*=UTF-8''Test%20Video.mp4`,
		w.Header().Get("Content-Disposition"))
	assert.Equal(t, "18", ex.formatID)

	assertNoLeftovers(t, ts)
}

func TestHandleDownloadNumericItag(t *testing.T) {
	ex := &stubExtractor{fetchName: "v.mp4", fetchContent: []byte("x")}
	ts := newTestServer(t, ex)

	w := post(t, ts, "/download", `{"url":"https://example.com/v","itag":22}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "22", ex.formatID)
	assertNoLeftovers(t, ts)
}

func TestHandleDownloadUnicodeTitle(t *testing.T) {
	ex := &stubExtractor{fetchName: "Été à Paris.mp4", fetchContent: []byte("x")}
	ts := newTestServer(t, ex)

	w := post(t, ts, "/download", `{"url":"https://example.com/v","itag":"18"}`)

	require.Equal(t, http.StatusOK, w.Code)
	disposition := w.Header().Get("Content-Disposition")
	assert.Contains(t, disposition, `filename="Ete a Paris.mp4"`)
	assert.Contains(t, disposition, `filename*=UTF-8''%C3%89t%C3%A9%20%C3%A0%20Paris.mp4`)
	assertNoLeftovers(t, ts)
}

func TestHandleDownloadErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		ex         *stubExtractor
		wantStatus int
	}{
		{
			name:       "missing url",
			body:       `{"itag":"18"}`,
			ex:         &stubExtractor{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "option as url",
			body:       `{"url":"--config-locations=/srv/videograb/cookies.txt","itag":"18"}`,
			ex:         &stubExtractor{fetchName: "v.mp4"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing itag",
			body:       `{"url":"https://example.com/v"}`,
			ex:         &stubExtractor{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad itag type",
			body:       `{"url":"https://example.com/v","itag":[1]}`,
			ex:         &stubExtractor{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "fetch timeout",
			body:       `{"url":"https://example.com/v","itag":"18"}`,
			ex:         &stubExtractor{fetchErr: extractor.ErrTimeout},
			wantStatus: http.StatusRequestTimeout,
		},
		{
			name:       "unknown itag",
			body:       `{"url":"https://example.com/v","itag":"999"}`,
			ex:         &stubExtractor{fetchErr: &extractor.ToolError{ExitCode: 1, Stderr: "ERROR: Requested format is not available"}},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "empty result",
			body:       `{"url":"https://example.com/v","itag":"18"}`,
			ex:         &stubExtractor{fetchErr: extractor.ErrEmptyResult},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.ex)

			w := post(t, ts, "/download", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.NotEmpty(t, decodeError(t, w).Error)
			assertNoLeftovers(t, ts)
		})
	}
}

func TestHandleDownloadClientGone(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{waitForCancel: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/download", strings.NewReader(`{"url":"https://example.com/v","itag":"18"}`)).WithContext(ctx)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	assert.Empty(t, w.Body.String())
	assertNoLeftovers(t, ts)
	assert.Equal(t, int64(1), ts.orch.Stats().Failed)
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{fetchName: "v.mp4", fetchContent: []byte("abc")})

	post(t, ts, "/download", `{"url":"https://example.com/v","itag":"18"}`)

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Running      bool  `json:"running"`
		HoldingSize  int64 `json:"holdingSize"`
		HoldingCount int   `json:"holdingCount"`
		Jobs         struct {
			Active    int64 `json:"active"`
			Succeeded int64 `json:"succeeded"`
		} `json:"jobs"`
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.False(t, body.Running)
	assert.Zero(t, body.HoldingSize)
	assert.Zero(t, body.HoldingCount)
	assert.Equal(t, int64(1), body.Jobs.Succeeded)
	assert.Zero(t, body.Jobs.Active)
	assert.Equal(t, "test", body.Version)
}

func TestHandleCookies(t *testing.T) {
	cookiesPath := filepath.Join(t.TempDir(), "data", "cookies.txt")
	cfg := models.DefaultConfig()
	cfg.YtdlCookiesPath = cookiesPath
	ts := newTestServerWithConfig(t, &stubExtractor{}, cfg)

	tests := []struct {
		name           string
		body           string
		wantStatusCode int
		wantContains   string
	}{
		{
			name: "valid cookies",
			body: `# Netscape HTTP Cookie File
.youtube.com	TRUE	/	TRUE	0	LOGIN_INFO	test_cookie`,
			wantStatusCode: http.StatusOK,
			wantContains:   "received",
		},
		{
			name:           "invalid cookies",
			body:           "not a valid cookie",
			wantStatusCode: http.StatusBadRequest,
			wantContains:   "invalid",
		},
		{
			name:           "empty body",
			body:           "",
			wantStatusCode: http.StatusBadRequest,
			wantContains:   "invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, ts, "/api/cookies", tt.body)

			assert.Equal(t, tt.wantStatusCode, w.Code)
			assert.Contains(t, strings.ToLower(w.Body.String()), tt.wantContains)
		})
	}

	data, err := os.ReadFile(cookiesPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "LOGIN_INFO")
}

func TestHandleCookiesWithoutPath(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{})

	w := post(t, ts, "/api/cookies", ".youtube.com\tTRUE\t/\tTRUE\t0\tSID\tx")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestValidateCookies(t *testing.T) {
	tests := []struct {
		name    string
		cookies string
		want    bool
	}{
		{
			name: "valid cookies",
			cookies: `.youtube.com	TRUE	/	TRUE	0	LOGIN_INFO	test
.youtube.com	TRUE	/	TRUE	0	VISITOR_INFO1_LIVE	test`,
			want: true,
		},
		{
			name:    "http only entry",
			cookies: "#HttpOnly_.example.com\tTRUE\t/\tTRUE\t0\tSESSION\tx",
			want:    true,
		},
		{
			name:    "crlf line endings",
			cookies: "# Netscape HTTP Cookie File\r\n.example.com\tTRUE\t/\tFALSE\t0\tA\tb\r\n",
			want:    true,
		},
		{
			name:    "comments only",
			cookies: "# Netscape HTTP Cookie File\n# nothing here",
			want:    false,
		},
		{
			name:    "wrong field count",
			cookies: ".youtube.com TRUE / TRUE 0 LOGIN_INFO test",
			want:    false,
		},
		{
			name:    "empty",
			cookies: "",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validateCookies(tt.cookies)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatIDUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: `"18"`, want: "18"},
		{in: `18`, want: "18"},
		{in: `"137+140"`, want: "137+140"},
		{in: `null`, want: ""},
		{in: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var f formatID
			err := json.Unmarshal([]byte(tt.in), &f)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(f))
		})
	}
}
