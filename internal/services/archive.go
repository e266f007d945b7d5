package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/postmod/apiserver/types"
)

const defaultArchiveTimeout = 5 * time.Second

// ObjectPutter is the subset of object storage used by the archive.
type ObjectPutter interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error
}

// RejectionArchive keeps a copy of every submission refused by
// moderation for later review. A nil *RejectionArchive records nothing.
type RejectionArchive struct {
	objects ObjectPutter
	timeout time.Duration
	logger  *slog.Logger
}

func NewRejectionArchive(objects ObjectPutter, logger *slog.Logger) *RejectionArchive {
	if logger == nil {
		logger = slog.Default()
	}
	return &RejectionArchive{
		objects: objects,
		timeout: defaultArchiveTimeout,
		logger:  logger.With("component", "archive"),
	}
}

// RejectionKey is the object key a rejection is stored under.
func RejectionKey(r types.Rejection) string {
	return fmt.Sprintf("rejections/%s/%d-%s.json", r.Kind, r.RejectedAt.UnixNano(), url.PathEscape(r.Author))
}

// Record uploads rejection. Failures are logged and swallowed.
func (a *RejectionArchive) Record(ctx context.Context, rejection types.Rejection) {
	if a == nil || a.objects == nil {
		return
	}
	if rejection.RejectedAt.IsZero() {
		rejection.RejectedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rejection)
	if err != nil {
		a.logger.Error("encode rejection", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	key := RejectionKey(rejection)
	metadata := map[string]string{"kind": rejection.Kind, "author": rejection.Author}
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json", metadata); err != nil {
		a.logger.Warn("archive rejection", "key", key, "error", err)
		return
	}
	a.logger.Info("rejection archived", "key", key, "author", rejection.Author)
}
