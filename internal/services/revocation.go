package services

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultRevocationSize = 10000

// RevocationList remembers revoked token ids until the tokens would have
// expired anyway.
type RevocationList struct {
	ids *expirable.LRU[string, struct{}]
}

func NewRevocationList(size int, ttl time.Duration) *RevocationList {
	if size <= 0 {
		size = defaultRevocationSize
	}
	return &RevocationList{ids: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (l *RevocationList) Revoke(id string) {
	if l == nil || id == "" {
		return
	}
	l.ids.Add(id, struct{}{})
}

func (l *RevocationList) IsRevoked(id string) bool {
	if l == nil || id == "" {
		return false
	}
	return l.ids.Contains(id)
}
