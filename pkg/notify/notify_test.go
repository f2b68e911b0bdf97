package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/zsxq"
)

func TestWeComText(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"errcode": 0, "errmsg": "ok"}`)
	}))
	defer server.Close()

	n := NewWeCom(server.URL, logger.Nop())
	require.NoError(t, n.Text("hello"))

	assert.Equal(t, "text", got["msgtype"])
	text := got["text"].(map[string]interface{})
	assert.Equal(t, "hello", text["content"])
}

func TestWeComMarkdown(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"errcode": 0}`)
	}))
	defer server.Close()

	n := NewWeCom(server.URL, logger.Nop())
	require.NoError(t, n.Markdown("**bold**"))
	assert.Equal(t, "markdown", got["msgtype"])
}

func TestWeComRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errcode": 93000, "errmsg": "invalid webhook url"}`)
	}))
	defer server.Close()

	n := NewWeCom(server.URL, logger.Nop())
	err := n.Text("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "93000")
}

func TestWeComHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWeCom(server.URL, logger.Nop())
	assert.Error(t, n.Text("hello"))
}

func TestNewTopicsDigest(t *testing.T) {
	topics := []zsxq.Topic{
		{ID: 1, Title: "First", CreateTime: "2024-03-01T10:00:00.000+0800"},
		{ID: 2, Title: "", CreateTime: "2024-03-01T09:00:00.000+0800"},
	}
	digest := NewTopicsDigest("777", topics)

	assert.Contains(t, digest, "2 new topics")
	assert.Contains(t, digest, "First")
	// An untitled topic falls back to its id.
	assert.Contains(t, digest, "topic 2")
}

func TestNewTopicsDigestTruncates(t *testing.T) {
	topics := make([]zsxq.Topic, 25)
	for i := range topics {
		topics[i] = zsxq.Topic{ID: int64(i + 1), Title: fmt.Sprintf("t%d", i+1)}
	}
	digest := NewTopicsDigest("777", topics)
	assert.Contains(t, digest, "25 new topics")
	assert.Contains(t, digest, "and 15 more")
	assert.NotContains(t, digest, "t11")
}

func TestPushSwallowsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// Must not panic or propagate.
	Push(NewWeCom(server.URL, logger.Nop()), logger.Nop(), "msg")
	Push(nil, logger.Nop(), "msg")
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = Nop{}
	assert.NoError(t, n.Text("x"))
	assert.NoError(t, n.Markdown("y"))
}
