package frame

import (
	"testing"
	"unsafe"
)

func validDescriptor() Descriptor {
	buf := make([]byte, 1920*1080*3/2)
	var d Descriptor
	d.Reset()
	d.FrameID = 1
	d.SourceID = 7
	d.Width = 1920
	d.Height = 1080
	d.Format = FormatNV12
	d.MemoryType = MemoryHeap
	d.Ptr = unsafe.Pointer(&buf[0])
	d.RegionSize = uint64(len(buf))
	d.FillLayout(d.RegionSize)
	return d
}

func TestDescriptorValid(t *testing.T) {
	d := validDescriptor()
	if !d.Valid() {
		t.Fatal("expected valid descriptor")
	}

	cases := []struct {
		name   string
		mutate func(*Descriptor)
	}{
		{"zero width", func(d *Descriptor) { d.Width = 0 }},
		{"zero height", func(d *Descriptor) { d.Height = 0 }},
		{"unknown format", func(d *Descriptor) { d.Format = FormatUnknown }},
		{"zero planes", func(d *Descriptor) { d.PlaneCount = 0 }},
		{"too many planes", func(d *Descriptor) { d.PlaneCount = 4 }},
		{"zero region", func(d *Descriptor) { d.RegionSize = 0 }},
		{"no backing", func(d *Descriptor) { d.Ptr = nil; d.FD = -1 }},
		{"plane overflow", func(d *Descriptor) { d.PlaneOffset[0] = uint32(d.RegionSize) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := validDescriptor()
			tc.mutate(&d)
			if d.Valid() {
				t.Errorf("expected invalid descriptor")
			}
		})
	}
}

func TestDescriptorValidWithFDOnly(t *testing.T) {
	d := validDescriptor()
	d.Ptr = nil
	d.FD = 5
	if !d.Valid() {
		t.Error("expected descriptor with fd backing to be valid")
	}
}

func TestDescriptorReset(t *testing.T) {
	d := validDescriptor()
	d.Reset()
	if d.Valid() {
		t.Error("expected reset descriptor to be invalid")
	}
	if d.FD != -1 {
		t.Errorf("expected fd -1 after reset, got %d", d.FD)
	}
}

func TestNV12Layout(t *testing.T) {
	d := validDescriptor()
	if d.PlaneCount != 2 {
		t.Fatalf("expected 2 planes, got %d", d.PlaneCount)
	}
	if d.PlaneSize[0] != 1920*1080 {
		t.Errorf("unexpected luma size %d", d.PlaneSize[0])
	}
	if d.PlaneOffset[1] != 1920*1080 {
		t.Errorf("unexpected chroma offset %d", d.PlaneOffset[1])
	}
	if d.PlaneSize[1] != 1920*1080/2 {
		t.Errorf("unexpected chroma size %d", d.PlaneSize[1])
	}

	luma := d.PlaneData(0)
	chroma := d.PlaneData(1)
	if len(luma) != 1920*1080 || len(chroma) != 1920*1080/2 {
		t.Errorf("plane slices have wrong lengths: %d/%d", len(luma), len(chroma))
	}
	if d.PlaneData(2) != nil {
		t.Error("expected nil for out-of-range plane")
	}
}

func TestFrameSize(t *testing.T) {
	cases := []struct {
		format PixelFormat
		want   uint64
	}{
		{FormatNV12, 640 * 480 * 3 / 2},
		{FormatYUYV, 640 * 480 * 2},
		{FormatRGB888, 640 * 480 * 3},
		{FormatRGBA8888, 640 * 480 * 4},
		{FormatUnknown, 0},
	}
	for _, tc := range cases {
		if got := tc.format.FrameSize(640, 480); got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.format, tc.want, got)
		}
	}
}

func TestFormatStrings(t *testing.T) {
	if FormatNV12.String() != "NV12" {
		t.Errorf("unexpected: %s", FormatNV12)
	}
	if FormatUnknown.String() != "Unknown" {
		t.Errorf("unexpected: %s", FormatUnknown)
	}
	if MemoryDmaBuf.String() != "dmabuf" {
		t.Errorf("unexpected: %s", MemoryDmaBuf)
	}
}
