package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Entry is one security event in a hash chain; each hash covers the
// previous hash plus the event fields, so tampering breaks Verify.
type Entry struct {
	TS     int64  `json:"ts"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Hash   string `json:"hash"`
}

// Log records credential-lifecycle events (logins, password changes,
// deactivations). Safe for concurrent handlers.
type Log struct {
	mu       sync.Mutex
	lastHash []byte
	entries  []Entry
}

func New() *Log { return &Log{} }

func (l *Log) Append(actor, action string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := sha256.New()
	h.Write(l.lastHash)
	h.Write([]byte(actor))
	h.Write([]byte(action))
	sum := h.Sum(nil)
	l.lastHash = sum
	e := Entry{TS: time.Now().Unix(), Actor: actor, Action: action, Hash: hex.EncodeToString(sum)}
	l.entries = append(l.entries, e)
	return e
}

func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var prev []byte
	for _, e := range l.entries {
		h := sha256.New()
		h.Write(prev)
		h.Write([]byte(e.Actor))
		h.Write([]byte(e.Action))
		sum := h.Sum(nil)
		if hex.EncodeToString(sum) != e.Hash {
			return fmt.Errorf("audit chain broken")
		}
		prev = sum
	}
	return nil
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
