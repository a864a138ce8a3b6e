package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jaywantadh/TeleVault/internal/storage"
	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// memStore is an in-memory Storage that can be told to fail specific calls.
type memStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	captions map[string]string // by object name
	names    map[string]string // ref -> object name
	seq      int
	putCalls int
	getCalls int

	// putErrs fails the n-th Put call (1-based).
	putErrs map[int]error
	// getErrs holds queued failures per ref; each Get pops one.
	getErrs map[string][]error
	// partialGet makes a failing Get write half the object first.
	partialGet bool
	putDelay   func(name string) time.Duration
	onPut      func(call int)
}

func newMemStore() *memStore {
	return &memStore{
		objects:  make(map[string][]byte),
		captions: make(map[string]string),
		names:    make(map[string]string),
		putErrs:  make(map[int]error),
		getErrs:  make(map[string][]error),
	}
}

func (m *memStore) Put(ctx context.Context, obj storage.Object) (string, error) {
	m.mu.Lock()
	m.putCalls++
	call := m.putCalls
	failure := m.putErrs[call]
	delay := m.putDelay
	hook := m.onPut
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if delay != nil {
		time.Sleep(delay(obj.Name))
	}
	if failure != nil {
		return "", failure
	}

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return "", vaulterr.New(vaulterr.IOError, "mem_put", err)
	}
	if obj.Size >= 0 && int64(len(data)) != obj.Size {
		return "", vaulterr.Errorf(vaulterr.RemoteRejected, "mem_put", "declared %d bytes, sent %d", obj.Size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ref := fmt.Sprintf("ref-%03d", m.seq)
	m.objects[ref] = data
	m.captions[obj.Name] = obj.Caption
	m.names[ref] = obj.Name
	return ref, nil
}

func (m *memStore) Get(ctx context.Context, ref string, w io.Writer) (int64, error) {
	m.mu.Lock()
	m.getCalls++
	var failure error
	if queue := m.getErrs[ref]; len(queue) > 0 {
		failure = queue[0]
		m.getErrs[ref] = queue[1:]
	}
	data, ok := m.objects[ref]
	m.mu.Unlock()

	if failure != nil {
		if m.partialGet && ok {
			w.Write(data[:len(data)/2])
		}
		return 0, failure
	}
	if !ok {
		return 0, vaulterr.Errorf(vaulterr.RemoteNotFound, "mem_get", "no object %s", ref)
	}
	n, err := io.Copy(w, bytes.NewReader(data))
	return n, err
}

func (m *memStore) Close() error { return nil }

func (m *memStore) object(ref string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[ref]
}

func (m *memStore) setObject(ref string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[ref] = data
}

func (m *memStore) caption(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.captions[name]
	return c, ok
}

func (m *memStore) puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putCalls
}

func (m *memStore) gets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}
