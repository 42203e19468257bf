package device

import "fmt"

// DeviceMismatchError means the submitting device is bound to another student.
type DeviceMismatchError struct {
	Student string
	Bound   string
}

func (e *DeviceMismatchError) Error() string {
	return fmt.Sprintf("device is registered to %s, not %s", e.Bound, e.Student)
}

// DeviceAlreadyBoundError is returned by Register when the device belongs to another student.
type DeviceAlreadyBoundError struct {
	Student string
	Other   string
}

func (e *DeviceAlreadyBoundError) Error() string {
	return fmt.Sprintf("device already registered to %s", e.Other)
}
