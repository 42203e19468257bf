package device

import "time"

type (
	// Document is the persisted device registry.
	Document struct {
		Devices  map[string]*Record `json:"devices"`         // primary fingerprint -> binding
		Mappings map[string]string  `json:"device_mappings"` // hardware fingerprint -> student
		Metadata Metadata           `json:"metadata"`
	}

	Record struct {
		Student      string     `json:"student"`
		Secondary    string     `json:"secondary"`
		Hardware     string     `json:"hardware"`
		RegisteredAt time.Time  `json:"registered_at"`
		UpdatedAt    time.Time  `json:"updated_at"`
		Details      Attributes `json:"details"`
	}

	Metadata struct {
		Created time.Time `json:"created"`
		Updated time.Time `json:"updated"`
	}

	// Binding is a registry entry as listed to operators.
	Binding struct {
		Primary string
		Record
	}
)

// NewDocument returns an empty registry document created at `now`.
func NewDocument(now time.Time) *Document {
	return &Document{
		Devices:  make(map[string]*Record),
		Mappings: make(map[string]string),
		Metadata: Metadata{Created: now, Updated: now},
	}
}

// Normalize fills the maps of a decoded document so it can be used right away.
func (d *Document) Normalize() {
	if d.Devices == nil {
		d.Devices = make(map[string]*Record)
	}
	if d.Mappings == nil {
		d.Mappings = make(map[string]string)
	}
	for k, rec := range d.Devices {
		if rec == nil {
			delete(d.Devices, k)
		}
	}
}
