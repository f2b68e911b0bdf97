// Package notify pushes sync results to a chat webhook. The engine treats
// notification as best-effort: a failed push is logged, never retried, and
// never fails the sync.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/zsxq"
)

// Notifier delivers short messages about sync outcomes.
type Notifier interface {
	// Text sends a plain-text message.
	Text(content string) error
	// Markdown sends a markdown-formatted message.
	Markdown(content string) error
}

// Nop is a Notifier that discards everything. Used when no webhook is
// configured.
type Nop struct{}

func (Nop) Text(string) error     { return nil }
func (Nop) Markdown(string) error { return nil }

// WeCom posts to an enterprise WeChat group-robot webhook.
type WeCom struct {
	webhookURL string
	httpClient *http.Client
	log        logger.Logger
}

// NewWeCom builds a notifier for the given webhook URL.
func NewWeCom(webhookURL string, log logger.Logger) *WeCom {
	if log == nil {
		log = logger.GetLogger()
	}
	return &WeCom{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

func (w *WeCom) Text(content string) error {
	return w.post(map[string]interface{}{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	})
}

func (w *WeCom) Markdown(content string) error {
	return w.post(map[string]interface{}{
		"msgtype":  "markdown",
		"markdown": map[string]string{"content": content},
	})
}

func (w *WeCom) post(payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not encode webhook payload: %w", err)
	}

	resp, err := w.httpClient.Post(w.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	var result struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("could not decode webhook response: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("webhook rejected message (code %d): %s", result.ErrCode, result.ErrMsg)
	}
	return nil
}

// maxDigestTopics caps how many titles a digest lists.
const maxDigestTopics = 10

// NewTopicsDigest renders a markdown digest of newly synced topics.
func NewTopicsDigest(groupID string, topics []zsxq.Topic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%d new topics in group %s**\n", len(topics), groupID)
	for i, t := range topics {
		if i >= maxDigestTopics {
			fmt.Fprintf(&b, "> ... and %d more\n", len(topics)-maxDigestTopics)
			break
		}
		title := t.Title
		if title == "" {
			title = fmt.Sprintf("topic %d", t.ID)
		}
		fmt.Fprintf(&b, "> %s (%s)\n", title, t.CreateTime)
	}
	return b.String()
}

// Push sends msg through n, logging instead of propagating failures.
func Push(n Notifier, log logger.Logger, msg string) {
	if n == nil {
		return
	}
	if err := n.Markdown(msg); err != nil {
		if log == nil {
			log = logger.GetLogger()
		}
		log.WithError(err).Warn("notification failed")
	}
}
