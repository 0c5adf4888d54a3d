package gpu

import "errors"

var (
	// ErrSizeMismatch is returned when a payload does not fit the buffer it targets.
	// It is fatal to the call but the caller may abort the frame and carry on.
	ErrSizeMismatch = errors.New("gpu: payload size does not match buffer capacity")

	// ErrDeviceTimeout is returned when submitted work does not complete in time.
	ErrDeviceTimeout = errors.New("gpu: timed out waiting for device")

	// ErrMapFailure is returned when a buffer cannot be mapped or its mapped contents
	// cannot be decoded. Host state is left as it was.
	ErrMapFailure = errors.New("gpu: buffer map failed")

	// ErrUnknownBuffer is returned for a buffer name the set does not own.
	ErrUnknownBuffer = errors.New("gpu: unknown buffer")

	// ErrBufferMapped is returned when a mapped buffer is written or used by a submission.
	ErrBufferMapped = errors.New("gpu: buffer is mapped")

	// ErrDeviceReleased is returned by any call on a released device.
	ErrDeviceReleased = errors.New("gpu: device released")

	// ErrDeviceLost is returned once the driver reports the device gone.
	ErrDeviceLost = errors.New("gpu: device lost")
)

// IsTransient reports whether err only spoils the current frame.
func IsTransient(err error) bool {
	return errors.Is(err, ErrDeviceTimeout) || errors.Is(err, ErrMapFailure)
}
