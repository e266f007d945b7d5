package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/postmod/apiserver/types"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.msgs = append(p.msgs, published{channel: channel, data: data, attrs: attrs})
	return "id", nil
}

func (p *fakePublisher) events(t *testing.T) []types.Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]types.Event, len(p.msgs))
	for i, msg := range p.msgs {
		require.NoError(t, json.Unmarshal(msg.data, &events[i]))
	}
	return events
}

type putObject struct {
	key         string
	data        []byte
	contentType string
	metadata    map[string]string
}

type fakeObjects struct {
	mu   sync.Mutex
	puts []putObject
	err  error
}

func (o *fakeObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	o.puts = append(o.puts, putObject{key: key, data: data, contentType: contentType, metadata: metadata})
	return nil
}

func (o *fakeObjects) decode(t *testing.T, i int, v any) {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NoError(t, json.Unmarshal(o.puts[i].data, v))
}
