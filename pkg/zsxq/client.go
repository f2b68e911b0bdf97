// Package zsxq is the HTTP client for the remote topic and file feeds. It
// issues single requests with randomized client-identity headers and maps
// failures onto the typed error taxonomy; retrying is the caller's job.
package zsxq

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"zsxqsync/pkg/apierr"
	"zsxqsync/pkg/clock"
	"zsxqsync/pkg/cursor"
	"zsxqsync/pkg/logger"
)

// BaseURL is the production API endpoint.
const BaseURL = "https://api.zsxq.com"

// ScopeAll is the default topic feed scope.
const ScopeAll = "all"

// Client talks to the remote API for one group.
type Client struct {
	httpClient     *http.Client
	downloadClient *http.Client
	baseURL        string
	cookie         string
	groupID        string
	log            logger.Logger
}

// NewClient creates a client. timeout bounds feed requests; downloadTimeout
// bounds file body downloads.
func NewClient(cookie, groupID string, timeout, downloadTimeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		downloadClient: &http.Client{Timeout: downloadTimeout},
		baseURL:        BaseURL,
		cookie:         cookie,
		groupID:        groupID,
		log:            log,
	}
}

// SetBaseURL points the client at a different endpoint. Used by tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// GroupID returns the group this client is bound to.
func (c *Client) GroupID() string {
	return c.groupID
}

// getJSON performs one GET attempt: stop check, request with fresh stealth
// headers, stop check again, then envelope decoding. The returned raw data
// is the resp_data payload.
func (c *Client) getJSON(tok *clock.Token, rawURL string) (json.RawMessage, error) {
	if tok.Stopped() {
		return nil, clock.ErrStopped
	}

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range c.stealthHeaders() {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if tok.Stopped() {
			return nil, clock.ErrStopped
		}
		c.log.WithError(err).WithField("url", rawURL).Error("request failed")
		return nil, apierr.Network(err)
	}
	defer resp.Body.Close()

	// The response is discarded unprocessed if a stop arrived mid-flight.
	if tok.Stopped() {
		return nil, clock.ErrStopped
	}

	c.log.DebugWithFields("request completed", map[string]interface{}{
		"url":      rawURL,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if resp.StatusCode != http.StatusOK {
		return nil, apierr.FromHTTPStatus(resp.StatusCode, fmt.Sprintf("server returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Network(err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.log.ErrorWithFields("undecodable payload", map[string]interface{}{
			"url":          rawURL,
			"body_preview": preview,
		})
		return nil, apierr.Parsing(err, resp.StatusCode)
	}

	if !env.Succeeded {
		return nil, apierr.FromRemoteCode(env.Code, env.errorMessage())
	}

	return env.RespData, nil
}

// FetchTopicPage fetches one page of topics strictly older than cur. A zero
// cursor fetches from the newest.
func (c *Client) FetchTopicPage(tok *clock.Token, cur cursor.Cursor, count int, scope string) (*TopicPage, error) {
	params := url.Values{}
	params.Set("scope", scope)
	params.Set("count", strconv.Itoa(count))
	if !cur.IsZero() {
		params.Set("end_time", cur.String())
	}
	endpoint := fmt.Sprintf("%s/v2/groups/%s/topics?%s", c.baseURL, c.groupID, params.Encode())

	c.log.DebugWithFields("fetching topic page", map[string]interface{}{
		"end_time": cur.String(),
		"count":    count,
	})

	raw, err := c.getJSON(tok, endpoint)
	if err != nil {
		return nil, err
	}

	var respData struct {
		Topics []Topic `json:"topics"`
	}
	if err := json.Unmarshal(raw, &respData); err != nil {
		return nil, apierr.Parsing(err, http.StatusOK)
	}

	return &TopicPage{Topics: respData.Topics}, nil
}

// FetchFilePage fetches one page of the file feed. index is the opaque
// pagination index from the previous page; empty starts from the top.
func (c *Client) FetchFilePage(tok *clock.Token, index string, count int, sort string) (*FilePage, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	params.Set("sort", sort)
	if index != "" {
		params.Set("index", index)
	}
	endpoint := fmt.Sprintf("%s/v2/groups/%s/files?%s", c.baseURL, c.groupID, params.Encode())

	c.log.DebugWithFields("fetching file page", map[string]interface{}{
		"index": index,
		"count": count,
		"sort":  sort,
	})

	raw, err := c.getJSON(tok, endpoint)
	if err != nil {
		return nil, err
	}

	var respData struct {
		Files []FileEntry `json:"files"`
		Index json.Number `json:"index"`
	}
	if err := json.Unmarshal(raw, &respData); err != nil {
		return nil, apierr.Parsing(err, http.StatusOK)
	}

	return &FilePage{Files: respData.Files, NextIndex: respData.Index.String()}, nil
}

// FetchDownloadURL resolves the short-lived download URL for a file.
func (c *Client) FetchDownloadURL(tok *clock.Token, fileID int64) (string, error) {
	endpoint := fmt.Sprintf("%s/v2/files/%d/download_url", c.baseURL, fileID)

	raw, err := c.getJSON(tok, endpoint)
	if err != nil {
		return "", err
	}

	var respData struct {
		DownloadURL string `json:"download_url"`
	}
	if err := json.Unmarshal(raw, &respData); err != nil {
		return "", apierr.Parsing(err, http.StatusOK)
	}
	if respData.DownloadURL == "" {
		return "", &apierr.Error{Kind: apierr.KindUnknown, Message: "response carried no download_url"}
	}

	return respData.DownloadURL, nil
}

// DownloadTo streams a resolved download URL into w, checking the stop
// token between chunks. Returns the byte count written.
func (c *Client) DownloadTo(tok *clock.Token, downloadURL string, w io.Writer) (int64, error) {
	if tok.Stopped() {
		return 0, clock.ErrStopped
	}

	req, err := http.NewRequest(http.MethodGet, downloadURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		if tok.Stopped() {
			return 0, clock.ErrStopped
		}
		return 0, apierr.Network(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apierr.FromHTTPStatus(resp.StatusCode, fmt.Sprintf("download returned status %d", resp.StatusCode))
	}

	var written int64
	buf := make([]byte, 32*1024)
	for {
		if tok.Stopped() {
			return written, clock.ErrStopped
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			wn, writeErr := w.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, fmt.Errorf("failed to write download data: %w", writeErr)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, apierr.Network(readErr)
		}
	}
}
