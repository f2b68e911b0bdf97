package zsxq

import (
	"encoding/json"
)

// envelope is the outer shape of every API response.
type envelope struct {
	Succeeded bool            `json:"succeeded"`
	Code      int             `json:"code"`
	ErrMsg    string          `json:"error"`
	Message   string          `json:"message"`
	RespData  json.RawMessage `json:"resp_data"`
}

func (e *envelope) errorMessage() string {
	if e.ErrMsg != "" {
		return e.ErrMsg
	}
	if e.Message != "" {
		return e.Message
	}
	return "unknown remote error"
}

// Topic is one remote post. The engine only inspects ID and CreateTime;
// everything else rides along opaquely in Raw and is handed to storage
// untouched.
type Topic struct {
	ID         int64
	CreateTime string
	Title      string
	Raw        json.RawMessage
}

// UnmarshalJSON keeps the full payload and lifts out the fields the engine
// needs.
func (t *Topic) UnmarshalJSON(data []byte) error {
	var head struct {
		TopicID    int64  `json:"topic_id"`
		CreateTime string `json:"create_time"`
		Title      string `json:"title"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	t.ID = head.TopicID
	t.CreateTime = head.CreateTime
	t.Title = head.Title
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// TopicPage is one page of the descending-time topic feed.
type TopicPage struct {
	Topics []Topic
}

// Oldest returns the last (oldest) topic of the page, or nil for an empty
// page.
func (p *TopicPage) Oldest() *Topic {
	if len(p.Topics) == 0 {
		return nil
	}
	return &p.Topics[len(p.Topics)-1]
}

// File is one remote attachment.
type File struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	DownloadCount int    `json:"download_count"`
	CreateTime    string `json:"create_time"`
}

// FileEntry is one element of the file feed: the file plus its opaque
// surrounding payload (owning topic, uploader) kept for storage.
type FileEntry struct {
	File File
	Raw  json.RawMessage
}

// UnmarshalJSON keeps the full entry and lifts out the file header.
func (e *FileEntry) UnmarshalJSON(data []byte) error {
	var head struct {
		File File `json:"file"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	e.File = head.File
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// FilePage is one page of the file feed. NextIndex is the opaque pagination
// index reported by the remote (a millisecond epoch).
type FilePage struct {
	Files     []FileEntry
	NextIndex string
}

// File feed sort orders.
const (
	SortByCreateTime    = "by_create_time"
	SortByDownloadCount = "by_download_count"
)
