// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: backend/memrenderer.go
// Summary: CPU renderer that maps client shm pools and hands scenes to a presenter.
// Usage: Default renderer for the headless and terminal backends.
// Notes: Buffer geometry is validated against the pool at creation and again on every pixel access.

package backend

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type shmPool struct {
	data      []byte
	size      int32
	refs      int
	destroyed bool
}

type shmBuffer struct {
	pool                  PoolHandle
	offset, width, height int32
	stride                int32
	format                uint32
}

type texture struct {
	width, height int
	pixels        []byte
}

// MemRenderer keeps shm pools mapped read-only in process memory.
type MemRenderer struct {
	mu        sync.Mutex
	next      uint32
	pools     map[PoolHandle]*shmPool
	buffers   map[BufferHandle]*shmBuffer
	textures  map[TextureHandle]*texture
	presenter Presenter
	frames    uint64
	last      Scene
}

// NewMemRenderer creates a renderer. presenter may be nil.
func NewMemRenderer(presenter Presenter) *MemRenderer {
	return &MemRenderer{
		pools:     make(map[PoolHandle]*shmPool),
		buffers:   make(map[BufferHandle]*shmBuffer),
		textures:  make(map[TextureHandle]*texture),
		presenter: presenter,
	}
}

func (r *MemRenderer) handle() uint32 {
	r.next++
	return r.next
}

// CreateShmPool maps fd and takes ownership of it.
func (r *MemRenderer) CreateShmPool(fd int, size int32) (PoolHandle, error) {
	defer unix.Close(fd)
	if size <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrPoolSize, size)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return 0, fmt.Errorf("backend: mmap pool: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h := PoolHandle(r.handle())
	r.pools[h] = &shmPool{data: data, size: size}
	return h, nil
}

// ResizeShmPool remaps a pool. Pools may only grow.
func (r *MemRenderer) ResizeShmPool(h PoolHandle, size int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[h]
	if !ok || pool.destroyed {
		return ErrUnknownHandle
	}
	if size < pool.size {
		return fmt.Errorf("%w: shrink from %d to %d", ErrPoolSize, pool.size, size)
	}
	if size == pool.size {
		return nil
	}
	data, err := unix.Mremap(pool.data, int(size), unix.MREMAP_MAYMOVE)
	if err != nil {
		return fmt.Errorf("backend: remap pool: %w", err)
	}
	pool.data = data
	pool.size = size
	return nil
}

// CreateBuffer describes a region of a pool. Geometry that does not fit the
// pool, or an unsupported format, is rejected.
func (r *MemRenderer) CreateBuffer(h PoolHandle, offset, width, height, stride int32, format uint32) (BufferHandle, error) {
	if format != FormatARGB8888 && format != FormatXRGB8888 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidFormat, format)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[h]
	if !ok || pool.destroyed {
		return 0, ErrUnknownHandle
	}
	if err := checkGeometry(offset, width, height, stride, pool.size); err != nil {
		return 0, err
	}
	pool.refs++
	b := BufferHandle(r.handle())
	r.buffers[b] = &shmBuffer{pool: h, offset: offset, width: width, height: height, stride: stride, format: format}
	return b, nil
}

func checkGeometry(offset, width, height, stride, poolSize int32) error {
	if width <= 0 || height <= 0 || offset < 0 {
		return fmt.Errorf("%w: %dx%d at %d", ErrInvalidStride, width, height, offset)
	}
	if int64(stride) < int64(width)*4 {
		return fmt.Errorf("%w: stride %d for width %d", ErrInvalidStride, stride, width)
	}
	if end := int64(offset) + int64(stride)*int64(height); end > int64(poolSize) {
		return fmt.Errorf("%w: buffer ends at %d, pool is %d bytes", ErrInvalidStride, end, poolSize)
	}
	return nil
}

// Pixels returns a read-only view of a buffer's rows.
func (r *MemRenderer) Pixels(b BufferHandle) ([]byte, int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.buffers[b]
	if !ok {
		return nil, 0, ErrUnknownHandle
	}
	pool := r.pools[buf.pool]
	if err := checkGeometry(buf.offset, buf.width, buf.height, buf.stride, int32(len(pool.data))); err != nil {
		return nil, 0, err
	}
	end := buf.offset + buf.stride*buf.height
	return pool.data[buf.offset:end], buf.stride, nil
}

// BufferSize reports a buffer's dimensions.
func (r *MemRenderer) BufferSize(b BufferHandle) (int32, int32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.buffers[b]
	if !ok {
		return 0, 0, false
	}
	return buf.width, buf.height, true
}

// CreateTextureFromRGBA copies raw RGBA pixels.
func (r *MemRenderer) CreateTextureFromRGBA(width, height int, pixels []byte) (TextureHandle, error) {
	if width <= 0 || height <= 0 || len(pixels) != width*height*4 {
		return 0, fmt.Errorf("%w: %dx%d with %d bytes", ErrInvalidStride, width, height, len(pixels))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h := TextureHandle(r.handle())
	r.textures[h] = &texture{width: width, height: height, pixels: append([]byte(nil), pixels...)}
	return h, nil
}

// DestroyPool releases the pool once its last buffer is gone.
func (r *MemRenderer) DestroyPool(h PoolHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[h]
	if !ok {
		return
	}
	pool.destroyed = true
	r.maybeUnmap(h, pool)
}

func (r *MemRenderer) DestroyBuffer(b BufferHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.buffers[b]
	if !ok {
		return
	}
	delete(r.buffers, b)
	if pool, ok := r.pools[buf.pool]; ok {
		pool.refs--
		r.maybeUnmap(buf.pool, pool)
	}
}

func (r *MemRenderer) maybeUnmap(h PoolHandle, pool *shmPool) {
	if !pool.destroyed || pool.refs > 0 {
		return
	}
	if err := unix.Munmap(pool.data); err != nil {
		debugLog.Printf("backend: munmap pool %d: %v", h, err)
	}
	delete(r.pools, h)
}

func (r *MemRenderer) DestroyTexture(t TextureHandle) {
	r.mu.Lock()
	delete(r.textures, t)
	r.mu.Unlock()
}

// Present records the scene and forwards it to the presenter.
func (r *MemRenderer) Present(scene Scene) error {
	r.mu.Lock()
	r.frames++
	r.last = scene
	presenter := r.presenter
	r.mu.Unlock()
	if presenter == nil {
		return nil
	}
	return presenter.Present(scene)
}

// Stats reports live object counts and frames presented.
func (r *MemRenderer) Stats() (pools, buffers, textures int, frames uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools), len(r.buffers), len(r.textures), r.frames
}

// LastScene returns the most recently presented scene.
func (r *MemRenderer) LastScene() Scene {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
