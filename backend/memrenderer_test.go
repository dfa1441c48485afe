// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: backend/memrenderer_test.go
// Summary: Exercises shm pool mapping, buffer validation and pool lifetime.

package backend

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func newPoolFD(t *testing.T, data []byte) int {
	t.Helper()
	fd, err := unix.MemfdCreate("pool-test", unix.MFD_CLOEXEC)
	if err != nil {
		t.Fatalf("memfd: %v", err)
	}
	if err := unix.Ftruncate(fd, int64(len(data))); err != nil {
		t.Fatalf("ftruncate: %v", err)
	}
	if _, err := unix.Pwrite(fd, data, 0); err != nil {
		t.Fatalf("pwrite: %v", err)
	}
	return fd
}

func TestMemRendererBufferPixels(t *testing.T) {
	r := NewMemRenderer(nil)
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	pool, err := r.CreateShmPool(newPoolFD(t, data), int32(len(data)))
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	buf, err := r.CreateBuffer(pool, 16, 2, 2, 8, FormatARGB8888)
	if err != nil {
		t.Fatalf("create buffer: %v", err)
	}
	pixels, stride, err := r.Pixels(buf)
	if err != nil {
		t.Fatalf("pixels: %v", err)
	}
	if stride != 8 || len(pixels) != 16 || pixels[0] != 16 {
		t.Fatalf("unexpected view: stride=%d len=%d first=%d", stride, len(pixels), pixels[0])
	}
	if w, h, ok := r.BufferSize(buf); !ok || w != 2 || h != 2 {
		t.Fatalf("BufferSize = %d,%d,%v", w, h, ok)
	}
}

func TestMemRendererRejectsBadGeometry(t *testing.T) {
	r := NewMemRenderer(nil)
	pool, err := r.CreateShmPool(newPoolFD(t, make([]byte, 64)), 64)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	cases := []struct {
		name                          string
		offset, width, height, stride int32
		format                        uint32
		want                          error
	}{
		{"overflow", 0, 4, 5, 16, FormatARGB8888, ErrInvalidStride},
		{"short stride", 0, 4, 1, 8, FormatARGB8888, ErrInvalidStride},
		{"zero width", 0, 0, 1, 4, FormatARGB8888, ErrInvalidStride},
		{"negative offset", -4, 1, 1, 4, FormatARGB8888, ErrInvalidStride},
		{"offset past end", 60, 1, 2, 4, FormatXRGB8888, ErrInvalidStride},
		{"format", 0, 1, 1, 4, 0x34325241, ErrInvalidFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.CreateBuffer(pool, tc.offset, tc.width, tc.height, tc.stride, tc.format)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMemRendererPoolOutlivesDestroyUntilBuffersGone(t *testing.T) {
	r := NewMemRenderer(nil)
	pool, err := r.CreateShmPool(newPoolFD(t, make([]byte, 32)), 32)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	buf, err := r.CreateBuffer(pool, 0, 2, 2, 8, FormatXRGB8888)
	if err != nil {
		t.Fatalf("create buffer: %v", err)
	}
	r.DestroyPool(pool)
	if _, _, err := r.Pixels(buf); err != nil {
		t.Fatalf("buffer should stay readable after pool destroy: %v", err)
	}
	if _, err := r.CreateBuffer(pool, 0, 1, 1, 4, FormatXRGB8888); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("destroyed pool accepted a buffer: %v", err)
	}
	r.DestroyBuffer(buf)
	if pools, buffers, _, _ := r.Stats(); pools != 0 || buffers != 0 {
		t.Fatalf("expected everything released, got pools=%d buffers=%d", pools, buffers)
	}
}

func TestMemRendererResizeOnlyGrows(t *testing.T) {
	r := NewMemRenderer(nil)
	fd := newPoolFD(t, make([]byte, 32))
	dup, err := unix.Dup(fd)
	if err != nil {
		t.Fatalf("dup: %v", err)
	}
	defer unix.Close(dup)
	pool, err := r.CreateShmPool(fd, 32)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := r.ResizeShmPool(pool, 16); !errors.Is(err, ErrPoolSize) {
		t.Fatalf("shrink accepted: %v", err)
	}
	if err := unix.Ftruncate(dup, 128); err != nil {
		t.Fatalf("grow file: %v", err)
	}
	if err := r.ResizeShmPool(pool, 128); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if _, err := r.CreateBuffer(pool, 64, 4, 4, 16, FormatARGB8888); err != nil {
		t.Fatalf("buffer in grown region: %v", err)
	}
}

type recordingPresenter struct{ scenes []Scene }

func (p *recordingPresenter) Present(s Scene) error {
	p.scenes = append(p.scenes, s)
	return nil
}

func TestMemRendererPresentForwards(t *testing.T) {
	p := &recordingPresenter{}
	r := NewMemRenderer(p)
	scene := Scene{Width: 640, Height: 480, Windows: []SceneWindow{{Title: "a"}}}
	if err := r.Present(scene); err != nil {
		t.Fatalf("present: %v", err)
	}
	if len(p.scenes) != 1 || p.scenes[0].Windows[0].Title != "a" {
		t.Fatalf("presenter did not receive scene: %+v", p.scenes)
	}
	if _, _, _, frames := r.Stats(); frames != 1 {
		t.Fatalf("frames = %d", frames)
	}
	if r.LastScene().Width != 640 {
		t.Fatalf("last scene not recorded")
	}
}

func TestMemRendererTextureCopies(t *testing.T) {
	r := NewMemRenderer(nil)
	px := []byte{1, 2, 3, 4}
	tex, err := r.CreateTextureFromRGBA(1, 1, px)
	if err != nil {
		t.Fatalf("texture: %v", err)
	}
	px[0] = 9
	if r.textures[tex].pixels[0] != 1 {
		t.Fatalf("texture aliases caller memory")
	}
	if _, err := r.CreateTextureFromRGBA(2, 2, px); err == nil {
		t.Fatalf("short pixel slice accepted")
	}
	r.DestroyTexture(tex)
	if _, _, textures, _ := r.Stats(); textures != 0 {
		t.Fatalf("texture not destroyed")
	}
}
