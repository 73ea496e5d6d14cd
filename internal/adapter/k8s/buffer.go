// SPDX-License-Identifier: MPL-2.0

package k8s

import (
	"bytes"
	"sync"
)

// cappedBuffer mirrors the local adapter's cappedWriter: it accumulates up
// to max bytes and fires onOverflow once, discarding further writes rather
// than blocking or erroring.
type cappedBuffer struct {
	max        int64
	onOverflow func()

	mu         sync.Mutex
	buf        bytes.Buffer
	overflowed bool
}

func (w *cappedBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.overflowed {
		return len(p), nil
	}

	if w.max > 0 && int64(w.buf.Len())+int64(len(p)) > w.max {
		if remaining := w.max - int64(w.buf.Len()); remaining > 0 {
			w.buf.Write(p[:remaining])
		}
		w.overflowed = true
		if w.onOverflow != nil {
			go w.onOverflow()
		}
		return len(p), nil
	}

	return w.buf.Write(p)
}

func (w *cappedBuffer) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.buf.Bytes()...)
}
