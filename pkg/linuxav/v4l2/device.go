//go:build linux

package v4l2

import (
	"fmt"
	"os"
	"syscall"
	"time"
	"unsafe"
)

// Device is an open V4L2 capture device using streaming (MMAP) I/O.
//
// Usage: Open, SetFormat, optionally SetFPS, RequestBuffers, queue every
// buffer, StreamOn, then loop WaitReady/DequeueBuffer/QueueBuffer. Close
// releases the mappings and the file descriptor.
type Device struct {
	fd      int
	path    string
	name    string
	buffers [][]byte
}

// Open opens a capture device and verifies it supports streaming capture.
func Open(path string) (*Device, error) {
	fd, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	var cap v4l2Capability
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&cap)); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("failed to query capabilities of %s: %w", path, err)
	}

	caps := cap.capabilities
	if caps&capDeviceCaps != 0 {
		caps = cap.deviceCaps
	}
	if caps&capVideoCapture == 0 || caps&capStreaming == 0 {
		syscall.Close(fd)
		return nil, fmt.Errorf("%s does not support streaming video capture", path)
	}

	return &Device{fd: fd, path: path, name: cstr(cap.card[:])}, nil
}

// Name returns the device's card name.
func (d *Device) Name() string { return d.name }

// Path returns the device path the device was opened with.
func (d *Device) Path() string { return d.path }

// SetFormat negotiates the capture format. The driver may adjust geometry;
// the format actually in effect is returned.
func (d *Device) SetFormat(width, height, fourcc uint32) (Format, error) {
	var f v4l2Format
	f.typ = bufTypeVideoCapture
	f.pix.width = width
	f.pix.height = height
	f.pix.pixelformat = fourcc
	f.pix.field = fieldNone

	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return Format{}, fmt.Errorf("failed to set format on %s: %w", d.path, err)
	}

	return Format{
		Width:        f.pix.width,
		Height:       f.pix.height,
		FourCC:       f.pix.pixelformat,
		BytesPerLine: f.pix.bytesperline,
		SizeImage:    f.pix.sizeimage,
	}, nil
}

// SetFPS requests a capture frame rate. Drivers that do not support frame
// rate selection ignore it; that is not an error.
func (d *Device) SetFPS(fps uint32) error {
	if fps == 0 {
		return nil
	}
	var p v4l2Streamparm
	p.typ = bufTypeVideoCapture
	p.timeperframe = v4l2Fract{numerator: 1, denominator: fps}

	if err := ioctl(d.fd, vidiocSParm, unsafe.Pointer(&p)); err != nil {
		if err == syscall.ENOTTY {
			return nil
		}
		return fmt.Errorf("failed to set frame rate on %s: %w", d.path, err)
	}
	return nil
}

// RequestBuffers allocates count MMAP buffers in the driver and maps them
// into the process. Returns the number of buffers actually granted.
func (d *Device) RequestBuffers(count uint32) (int, error) {
	req := v4l2RequestBuffers{
		count:  count,
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("failed to request buffers on %s: %w", d.path, err)
	}
	if req.count < 2 {
		return 0, fmt.Errorf("insufficient buffer memory on %s: got %d buffers", d.path, req.count)
	}

	d.buffers = make([][]byte, 0, req.count)
	for i := uint32(0); i < req.count; i++ {
		buf := v4l2Buffer{
			index:  i,
			typ:    bufTypeVideoCapture,
			memory: memoryMmap,
		}
		if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
			d.ReleaseBuffers()
			return 0, fmt.Errorf("failed to query buffer %d on %s: %w", i, d.path, err)
		}

		data, err := syscall.Mmap(d.fd, int64(buf.m), int(buf.length),
			syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
		if err != nil {
			d.ReleaseBuffers()
			return 0, fmt.Errorf("failed to mmap buffer %d on %s: %w", i, d.path, err)
		}
		d.buffers = append(d.buffers, data)
	}

	return len(d.buffers), nil
}

// Buffer returns the mapped bytes of one device buffer.
func (d *Device) Buffer(index int) []byte {
	if index < 0 || index >= len(d.buffers) {
		return nil
	}
	return d.buffers[index]
}

// QueueBuffer hands a buffer back to the driver for filling.
func (d *Device) QueueBuffer(index int) error {
	buf := v4l2Buffer{
		index:  uint32(index),
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("failed to queue buffer %d on %s: %w", index, d.path, err)
	}
	return nil
}

// DequeueBuffer takes one filled buffer from the driver. Returns
// syscall.EAGAIN when no buffer is ready (the device is non-blocking).
func (d *Device) DequeueBuffer() (DequeuedBuffer, error) {
	buf := v4l2Buffer{
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		return DequeuedBuffer{}, err
	}

	ts := uint64(buf.tvSec)*uint64(time.Second) + uint64(buf.tvUsec)*uint64(time.Microsecond)
	return DequeuedBuffer{
		Index:       int(buf.index),
		BytesUsed:   buf.bytesused,
		Sequence:    buf.sequence,
		TimestampNs: ts,
	}, nil
}

// WaitReady blocks until the device has a filled buffer or the timeout
// elapses. Returns false on timeout.
func (d *Device) WaitReady(timeout time.Duration) (bool, error) {
	var fds syscall.FdSet
	fds.Bits[d.fd/64] |= 1 << (uint(d.fd) % 64)

	tv := syscall.NsecToTimeval(timeout.Nanoseconds())
	n, err := syscall.Select(d.fd+1, &fds, nil, nil, &tv)
	if err != nil {
		if err == syscall.EINTR {
			return false, nil
		}
		return false, fmt.Errorf("select failed on %s: %w", d.path, err)
	}
	return n > 0, nil
}

// StreamOn starts streaming.
func (d *Device) StreamOn() error {
	typ := uint32(bufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("failed to start streaming on %s: %w", d.path, err)
	}
	return nil
}

// StreamOff stops streaming and discards queued buffers.
func (d *Device) StreamOff() error {
	typ := uint32(bufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("failed to stop streaming on %s: %w", d.path, err)
	}
	return nil
}

// ReleaseBuffers unmaps all device buffers.
func (d *Device) ReleaseBuffers() {
	for _, b := range d.buffers {
		_ = syscall.Munmap(b)
	}
	d.buffers = nil
}

// Close releases the buffers and the file descriptor.
func (d *Device) Close() {
	d.ReleaseBuffers()
	if d.fd >= 0 {
		_ = syscall.Close(d.fd)
		d.fd = -1
	}
}

// FindDevices lists the V4L2 capture devices on the system.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir("/sys/class/video4linux")
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	var devices []DeviceInfo
	for _, entry := range entries {
		devicePath := "/dev/" + entry.Name()

		fd, err := open(devicePath)
		if err != nil {
			continue
		}

		var cap v4l2Capability
		queryErr := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&cap))
		syscall.Close(fd)
		if queryErr != nil {
			continue
		}

		caps := cap.capabilities
		if caps&capDeviceCaps != 0 {
			caps = cap.deviceCaps
		}
		if caps&capVideoCapture == 0 {
			continue
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: cstr(cap.card[:]),
			Caps:       caps,
		})
	}

	return devices, nil
}
