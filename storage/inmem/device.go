// Package inmem keeps application state in process memory. Used by tests and dry runs.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/hudoor/hudoor/core/device"
)

type deviceStore struct {
	mutex sync.Mutex
	doc   *device.Document
}

func NewDeviceStore() device.Store {
	return &deviceStore{doc: device.NewDocument(time.Now().UTC())}
}

func clone(doc *device.Document) *device.Document {
	cp := &device.Document{
		Devices:  make(map[string]*device.Record, len(doc.Devices)),
		Mappings: make(map[string]string, len(doc.Mappings)),
		Metadata: doc.Metadata,
	}
	for k, rec := range doc.Devices {
		r := *rec
		cp.Devices[k] = &r
	}
	for k, v := range doc.Mappings {
		cp.Mappings[k] = v
	}
	return cp
}

func (s *deviceStore) Update(ctx context.Context, fn func(doc *device.Document) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	work := clone(s.doc)
	changed, err := fn(work)
	if err != nil {
		return err
	}
	if changed {
		s.doc = work
	}
	return nil
}
