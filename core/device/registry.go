// Package device binds browser devices to students so one device cannot sign in for two people.
package device

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hudoor/hudoor/core"
)

// Outcome of a device verification.
type Outcome int

const (
	Unregistered Outcome = iota
	Verified
)

// Tier is the lookup step of the verification cascade that recognized a device.
type Tier int

const (
	TierNone Tier = iota
	TierPrimary
	TierHardwareIndex
	TierHardwareScan
	TierSecondaryScan
)

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierHardwareIndex:
		return "hardware_index"
	case TierHardwareScan:
		return "hardware_scan"
	case TierSecondaryScan:
		return "secondary_scan"
	default:
		return "none"
	}
}

type (
	Verification struct {
		Outcome  Outcome
		Tier     Tier
		Migrated bool // the binding was moved to the submitted primary fingerprint
	}

	// Store persists the registry document.
	Store interface {
		// Update runs a read-modify-write of the document under an exclusive lock. The document
		// is written back only when `fn` reports a change and returns no error.
		Update(ctx context.Context, fn func(doc *Document) (changed bool, err error)) error
	}

	Registry struct {
		store Store
		now   func() time.Time
	}
)

func NewRegistry(store Store) *Registry {
	return &Registry{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func sameStudent(a, b string) bool {
	return strings.EqualFold(core.CollapseSpaces(a), core.CollapseSpaces(b))
}

// sortedKeys gives the scans a deterministic order.
func sortedKeys(devices map[string]*Record) []string {
	keys := make([]string, 0, len(devices))
	for k := range devices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Verify checks that `fps` may be used by `student`. Devices that are not bound to anyone yield
// Unregistered, devices bound to another student a *DeviceMismatchError.
func (reg *Registry) Verify(ctx context.Context, student string, fps Fingerprints) (Verification, error) {
	var res Verification
	err := reg.store.Update(ctx, func(doc *Document) (bool, error) {
		if rec, ok := doc.Devices[fps.Primary]; ok {
			if !sameStudent(rec.Student, student) {
				return false, &DeviceMismatchError{Student: student, Bound: rec.Student}
			}
			res = Verification{Outcome: Verified, Tier: TierPrimary}
			return false, nil
		}

		if bound, ok := doc.Mappings[fps.Hardware]; ok && !sameStudent(bound, student) {
			return false, &DeviceMismatchError{Student: student, Bound: bound}
		}

		scans := []struct {
			tier  Tier
			match func(*Record) bool
		}{
			{TierHardwareScan, func(r *Record) bool { return r.Hardware == fps.Hardware }},
			{TierSecondaryScan, func(r *Record) bool { return r.Secondary == fps.Secondary }},
		}
		for _, scan := range scans {
			for _, key := range sortedKeys(doc.Devices) {
				rec := doc.Devices[key]
				if !scan.match(rec) {
					continue
				}
				if !sameStudent(rec.Student, student) {
					return false, &DeviceMismatchError{Student: student, Bound: rec.Student}
				}
				reg.migrate(doc, key, fps)
				res = Verification{Outcome: Verified, Tier: scan.tier, Migrated: true}
				return true, nil
			}
		}

		res = Verification{Outcome: Unregistered}
		return false, nil
	})
	if err != nil {
		return Verification{}, err
	}
	return res, nil
}

// migrate moves the record at `from` to the submitted primary fingerprint.
func (reg *Registry) migrate(doc *Document, from string, fps Fingerprints) {
	now := reg.now()
	old := doc.Devices[from]
	delete(doc.Devices, from)
	doc.Devices[fps.Primary] = &Record{
		Student:      old.Student,
		Secondary:    fps.Secondary,
		Hardware:     fps.Hardware,
		RegisteredAt: old.RegisteredAt,
		UpdatedAt:    now,
		Details:      fps.Raw,
	}
	doc.Mappings[fps.Hardware] = old.Student
	doc.Metadata.Updated = now
}

// Register binds `fps` to `student`. Registering a device already bound to the same student is
// a no-op; a device bound to someone else yields a *DeviceAlreadyBoundError.
func (reg *Registry) Register(ctx context.Context, student string, fps Fingerprints) error {
	student = core.CollapseSpaces(student)
	return reg.store.Update(ctx, func(doc *Document) (bool, error) {
		if rec, ok := doc.Devices[fps.Primary]; ok {
			if sameStudent(rec.Student, student) {
				return false, nil
			}
			return false, &DeviceAlreadyBoundError{Student: student, Other: rec.Student}
		}
		if bound, ok := doc.Mappings[fps.Hardware]; ok && !sameStudent(bound, student) {
			return false, &DeviceAlreadyBoundError{Student: student, Other: bound}
		}
		for _, key := range sortedKeys(doc.Devices) {
			rec := doc.Devices[key]
			if (rec.Hardware == fps.Hardware || rec.Secondary == fps.Secondary) && !sameStudent(rec.Student, student) {
				return false, &DeviceAlreadyBoundError{Student: student, Other: rec.Student}
			}
		}

		now := reg.now()
		doc.Devices[fps.Primary] = &Record{
			Student:      student,
			Secondary:    fps.Secondary,
			Hardware:     fps.Hardware,
			RegisteredAt: now,
			UpdatedAt:    now,
			Details:      fps.Raw,
		}
		doc.Mappings[fps.Hardware] = student
		doc.Metadata.Updated = now
		return true, nil
	})
}

// Bindings lists the registered devices, optionally only those of `student`, ordered by student
// then registration time.
func (reg *Registry) Bindings(ctx context.Context, student string) ([]Binding, error) {
	var list []Binding
	err := reg.store.Update(ctx, func(doc *Document) (bool, error) {
		for key, rec := range doc.Devices {
			if student != "" && !sameStudent(rec.Student, student) {
				continue
			}
			list = append(list, Binding{Primary: key, Record: *rec})
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Student != list[j].Student {
			return list[i].Student < list[j].Student
		}
		if !list[i].RegisteredAt.Equal(list[j].RegisteredAt) {
			return list[i].RegisteredAt.Before(list[j].RegisteredAt)
		}
		return list[i].Primary < list[j].Primary
	})
	return list, nil
}
