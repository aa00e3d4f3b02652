package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/filex"
)

// Queue returns the current queue order.
func (o *Outbox) Queue() ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.readQueue()
}

func (o *Outbox) readQueue() ([]string, error) {
	b, err := os.ReadFile(filepath.Join(o.dir, queueFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var q []string
	if err := json.Unmarshal(b, &q); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", queueFile, common.ErrCorruptLocalState, err)
	}
	return q, nil
}

func (o *Outbox) writeQueue(q []string) error {
	if q == nil {
		q = []string{}
	}
	b, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(filepath.Join(o.dir, queueFile), b, 0o600)
}

// mutateQueue reads the whole queue, applies fn and writes the whole
// result back.
func (o *Outbox) mutateQueue(fn func([]string) []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	q, err := o.readQueue()
	if err != nil {
		return err
	}
	return o.writeQueue(fn(q))
}

func without(q []string, id string) []string {
	out := make([]string, 0, len(q))
	for _, v := range q {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// toTail moves id behind every other entry.
func toTail(q []string, id string) []string {
	return append(without(q, id), id)
}
