package filesync

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"zsxqsync/pkg/apierr"
	"zsxqsync/pkg/clock"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/ratelimit"
	"zsxqsync/pkg/retry"
	"zsxqsync/pkg/storage"
)

// FileResolver is the slice of the API client the downloader needs.
type FileResolver interface {
	FetchDownloadURL(tok *clock.Token, fileID int64) (string, error)
	DownloadTo(tok *clock.Token, downloadURL string, w io.Writer) (int64, error)
}

// DownloadStats accumulates over one download run.
type DownloadStats struct {
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
}

// Downloader fetches the bodies of pending file records. A file already on
// disk with a matching byte size is skipped without touching the network.
type Downloader struct {
	client FileResolver
	store  storage.FileGateway
	pacer  *ratelimit.Pacer
	policy *retry.Policy
	tok    *clock.Token
	dir    string
	log    logger.Logger
}

// NewDownloader wires a downloader saving into dir.
func NewDownloader(client FileResolver, store storage.FileGateway, pacer *ratelimit.Pacer, policy *retry.Policy, tok *clock.Token, dir string, log logger.Logger) *Downloader {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Downloader{
		client: client,
		store:  store,
		pacer:  pacer,
		policy: policy,
		tok:    tok,
		dir:    dir,
		log:    log,
	}
}

// Run downloads every pending record matched by opts. Transient failures on
// one file are retried, then the file is marked failed and the run moves on;
// only expired access or an auth failure ends the run early. Returns
// clock.ErrStopped when cancelled mid-run.
func (d *Downloader) Run(opts storage.PendingOptions) (DownloadStats, error) {
	var stats DownloadStats

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return stats, fmt.Errorf("could not create download directory: %w", err)
	}

	pending, err := d.store.Pending(opts)
	if err != nil {
		return stats, err
	}
	d.log.InfoWithFields("starting downloads", map[string]interface{}{
		"pending": len(pending),
		"dir":     d.dir,
	})

	for _, rec := range pending {
		if d.tok.Stopped() {
			return stats, clock.ErrStopped
		}

		target := d.targetPath(rec)
		if info, err := os.Stat(target); err == nil && info.Size() == rec.Size {
			d.log.DebugWithFields("already on disk, skipping", map[string]interface{}{
				"file": rec.Name,
				"size": humanize.Bytes(uint64(rec.Size)),
			})
			if err := d.store.MarkStatus(rec.ID, storage.StatusSkipped, target); err != nil {
				return stats, err
			}
			stats.Skipped++
			continue
		}

		written, err := d.downloadOne(rec, target)
		if err != nil {
			if err == clock.ErrStopped {
				return stats, err
			}
			if fatalDownloadErr(err) {
				return stats, err
			}
			d.log.WithError(err).WithField("file", rec.Name).Warn("download failed")
			if markErr := d.store.MarkStatus(rec.ID, storage.StatusFailed, ""); markErr != nil {
				return stats, markErr
			}
			stats.Failed++
		} else {
			d.log.InfoWithFields("downloaded", map[string]interface{}{
				"file": rec.Name,
				"size": humanize.Bytes(uint64(written)),
			})
			if err := d.store.MarkStatus(rec.ID, storage.StatusCompleted, target); err != nil {
				return stats, err
			}
			stats.Downloaded++
			stats.Bytes += written
		}

		if !d.pace() {
			return stats, clock.ErrStopped
		}
	}

	d.log.InfoWithFields("downloads finished", map[string]interface{}{
		"downloaded": stats.Downloaded,
		"skipped":    stats.Skipped,
		"failed":     stats.Failed,
		"bytes":      humanize.Bytes(uint64(stats.Bytes)),
	})
	return stats, nil
}

func (d *Downloader) pace() bool {
	if d.pacer == nil {
		return !d.tok.Stopped()
	}
	if !d.pacer.Pause(d.tok) {
		return false
	}
	return d.pacer.OperationDone(d.tok)
}

// downloadOne resolves the short-lived URL and streams the body into a
// temporary file, renaming only on success so a crash never leaves a
// truncated file under the final name.
func (d *Downloader) downloadOne(rec storage.FileRecord, target string) (int64, error) {
	url, err := d.resolveURL(rec.ID)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(d.dir, ".part-*")
	if err != nil {
		return 0, fmt.Errorf("could not create temp file: %w", err)
	}
	tmpName := tmp.Name()

	written, err := d.client.DownloadTo(d.tok, url, tmp)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	if rec.Size > 0 && written != rec.Size {
		os.Remove(tmpName)
		return 0, fmt.Errorf("size mismatch for %s: got %d, want %d", rec.Name, written, rec.Size)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("could not move download into place: %w", err)
	}
	return written, nil
}

// resolveURL fetches the download URL with the graduated retry policy.
// Device-restricted files fail immediately; the remote only serves them to
// its mobile clients.
func (d *Downloader) resolveURL(fileID int64) (string, error) {
	var st retry.State
	for {
		if d.tok.Stopped() {
			return "", clock.ErrStopped
		}
		url, err := d.client.FetchDownloadURL(d.tok, fileID)
		if err == nil {
			return url, nil
		}
		if err == clock.ErrStopped {
			return "", err
		}
		action, wait := d.policy.Next(&st, err)
		if action != retry.ActionRetry {
			return "", err
		}
		if !clock.Sleep(d.tok, wait) {
			return "", clock.ErrStopped
		}
	}
}

// fatalDownloadErr reports whether the error should end the whole run
// instead of failing just this file. Device-restricted files are per-file
// failures even though they classify as auth errors.
func fatalDownloadErr(err error) bool {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == apierr.CodeDeviceRestricted {
		return false
	}
	return apiErr.Class() != apierr.ClassTransient
}

// targetPath maps a record onto its on-disk path. A name already taken by a
// different-sized file gets the record id as a prefix.
func (d *Downloader) targetPath(rec storage.FileRecord) string {
	name := sanitizeName(rec.Name)
	target := filepath.Join(d.dir, name)
	if info, err := os.Stat(target); err == nil && info.Size() != rec.Size {
		target = filepath.Join(d.dir, fmt.Sprintf("%d_%s", rec.ID, name))
	}
	return target
}

// sanitizeName strips path separators and control characters from a remote
// file name.
func sanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == 0:
			return '_'
		case r < 0x20:
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		name = "unnamed"
	}
	return name
}
