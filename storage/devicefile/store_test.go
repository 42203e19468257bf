package devicefile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hudoor/hudoor/core/device"
	testutil "github.com/hudoor/hudoor/tests"
)

func newTestStore(t *testing.T) (device.Store, string) {
	path := filepath.Join(t.TempDir(), "security", "device_fingerprints.json")
	return NewStore(path, testutil.Logger()), path
}

func readDoc(t *testing.T, path string) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &top))
	return top
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)

	// the first use creates an empty document, even when nothing changes
	require.NoError(t, s.Update(ctx, func(doc *device.Document) (bool, error) {
		assert.Empty(t, doc.Devices)
		return false, nil
	}))
	top := readDoc(t, path)
	assert.JSONEq(t, `{}`, string(top["devices"]))
	assert.JSONEq(t, `{}`, string(top["device_mappings"]))
	assert.Contains(t, top, "metadata")

	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Update(ctx, func(doc *device.Document) (bool, error) {
		doc.Devices["p1"] = &device.Record{Student: "Sara", Secondary: "s1", Hardware: "h1", RegisteredAt: now, UpdatedAt: now}
		doc.Mappings["h1"] = "Sara"
		return true, nil
	}))
	top = readDoc(t, path)
	assert.Contains(t, top, "devices")
	assert.Contains(t, top, "device_mappings")
	assert.Contains(t, top, "metadata")

	// errors discard the changes
	require.Error(t, s.Update(ctx, func(doc *device.Document) (bool, error) {
		delete(doc.Devices, "p1")
		return true, assert.AnError
	}))

	// a second store on the same file sees the committed state
	other := NewStore(path, testutil.Logger())
	require.NoError(t, other.Update(ctx, func(doc *device.Document) (bool, error) {
		require.Contains(t, doc.Devices, "p1")
		assert.Equal(t, "Sara", doc.Devices["p1"].Student)
		assert.True(t, now.Equal(doc.Devices["p1"].RegisteredAt))
		assert.Equal(t, "Sara", doc.Mappings["h1"])
		return false, nil
	}))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files are cleaned up")
}

func TestStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	_, path := newTestStore(t)
	stores := []device.Store{NewStore(path, testutil.Logger()), NewStore(path, testutil.Logger())}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := stores[i%2].Update(ctx, func(doc *device.Document) (bool, error) {
				doc.Devices[string(rune('a'+i))] = &device.Record{Student: "s"}
				return true, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.NoError(t, stores[0].Update(ctx, func(doc *device.Document) (bool, error) {
		assert.Len(t, doc.Devices, 20)
		return false, nil
	}))
}

func TestStore_Repair(t *testing.T) {
	ctx := context.Background()

	t.Run("corrupt", func(t *testing.T) {
		s, path := newTestStore(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(`{"devices": {`), 0o600))

		require.NoError(t, s.Update(ctx, func(doc *device.Document) (bool, error) {
			assert.Empty(t, doc.Devices)
			return false, nil
		}))

		backup, err := os.ReadFile(path + ".bak")
		require.NoError(t, err)
		assert.Equal(t, `{"devices": {`, string(backup))
		assert.Contains(t, readDoc(t, path), "devices")
	})

	t.Run("missing mappings", func(t *testing.T) {
		s, path := newTestStore(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		legacy := `{"devices": {"p1": {"student": "Sara", "secondary": "s1", "hardware": "h1"}}}`
		require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

		require.NoError(t, s.Update(ctx, func(doc *device.Document) (bool, error) {
			assert.Equal(t, "Sara", doc.Mappings["h1"])
			return false, nil
		}))
		assert.Contains(t, readDoc(t, path), "device_mappings")
	})

	t.Run("unwrapped devices", func(t *testing.T) {
		s, path := newTestStore(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		legacy := `{"p1": {"student": "Sara", "secondary": "s1", "hardware": "h1"}}`
		require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

		require.NoError(t, s.Update(ctx, func(doc *device.Document) (bool, error) {
			require.Contains(t, doc.Devices, "p1")
			assert.Equal(t, "Sara", doc.Devices["p1"].Student)
			assert.Equal(t, "Sara", doc.Mappings["h1"])
			return false, nil
		}))
	})
}
