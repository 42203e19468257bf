// Package devicefile persists the device registry as one JSON document on disk.
package devicefile

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/hudoor/hudoor/core"
	"github.com/hudoor/hudoor/core/device"
)

const lockRetryDelay = 50 * time.Millisecond

type store struct {
	path string
	log  core.Logger

	mutex sync.Mutex
	flock *flock.Flock
}

// NewStore returns a device.Store backed by the JSON file at `path`. Other processes using the
// same path are serialized with an advisory lock on `<path>.lock`.
func NewStore(path string, log core.Logger) device.Store {
	return &store{
		path:  path,
		log:   log,
		flock: flock.New(path + ".lock"),
	}
}

func (s *store) Update(ctx context.Context, fn func(doc *device.Document) (bool, error)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "creating device registry directory")
	}
	locked, err := s.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return errors.Wrap(err, "locking device registry")
	}
	if !locked {
		return errors.New("could not lock device registry")
	}
	defer func() { _ = s.flock.Unlock() }()

	doc, repaired, err := s.load()
	if err != nil {
		return err
	}
	changed, err := fn(doc)
	if err != nil {
		return err
	}
	if !changed && !repaired {
		return nil
	}
	return s.write(doc)
}

// load reads the document. `repaired` is true when the file had to be upgraded or replaced and
// must be written back.
func (s *store) load() (doc *device.Document, repaired bool, err error) {
	now := time.Now().UTC()
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.log.Info("creating device registry", map[string]interface{}{"path": s.path})
		return device.NewDocument(now), true, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "reading device registry")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return device.NewDocument(now), true, nil
	}

	var top map[string]json.RawMessage
	if err = json.Unmarshal(data, &top); err != nil {
		backup := s.path + ".bak"
		if werr := os.WriteFile(backup, data, 0o600); werr != nil {
			return nil, false, errors.Wrap(werr, "backing up corrupt device registry")
		}
		s.log.Warn("device registry is corrupt, starting over", err, map[string]interface{}{
			"path":   s.path,
			"backup": backup,
		})
		return device.NewDocument(now), true, nil
	}

	doc = device.NewDocument(now)
	if _, ok := top["devices"]; ok {
		if err = json.Unmarshal(data, doc); err != nil {
			return nil, false, errors.Wrap(err, "decoding device registry")
		}
	} else {
		// legacy layout: the whole document is the devices map
		if err = json.Unmarshal(data, &doc.Devices); err != nil {
			return nil, false, errors.Wrap(err, "decoding legacy device registry")
		}
		repaired = true
	}
	doc.Normalize()

	if _, ok := top["device_mappings"]; !ok {
		for _, rec := range doc.Devices {
			if rec.Hardware != "" {
				doc.Mappings[rec.Hardware] = rec.Student
			}
		}
		repaired = true
	}
	if doc.Metadata.Created.IsZero() {
		doc.Metadata.Created = now
		doc.Metadata.Updated = now
	}
	if repaired {
		s.log.Info("device registry upgraded", map[string]interface{}{
			"path":    s.path,
			"devices": len(doc.Devices),
		})
	}
	return doc, repaired, nil
}

// write replaces the file atomically: the old document stays in place until the new one is
// fully on disk.
func (s *store) write(doc *device.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding device registry")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp device registry")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing device registry")
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "syncing device registry")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing device registry")
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "replacing device registry")
	}
	return nil
}
