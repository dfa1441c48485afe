// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/shm.go
// Summary: wl_shm, wl_shm_pool and wl_buffer backed by renderer pools.
// Notes: Geometry that does not fit its pool is a wl_shm protocol error; pixel memory is only touched by the renderer.

package compositor

import (
	"errors"

	"github.com/framegrace/texelway/backend"
	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
	"github.com/framegrace/texelway/server"
)

// Buffer is a client pixel buffer living in a shm pool.
type Buffer struct {
	comp          *Compositor
	res           registry.Resource
	handle        backend.BufferHandle
	width, height int32
	surface       *Surface
}

// Resource is the wl_buffer handle.
func (b *Buffer) Resource() registry.Resource { return b.res }

// Handle is the renderer handle backing the buffer.
func (b *Buffer) Handle() backend.BufferHandle { return b.handle }

func (b *Buffer) release() {
	if !b.comp.reg.Alive(b.res) {
		return
	}
	b.comp.releases++
	if err := b.comp.srv.SendEvent(b.res, 0); err != nil {
		debugLog.Printf("compositor: release %s: %v", b.res, err)
	}
}

type shmPool struct {
	res    registry.Resource
	handle backend.PoolHandle
}

func bindShm(c *Compositor) server.BindFunc {
	return func(s *server.Server, res registry.Resource) error {
		for _, format := range []uint32{protocol.ShmFormatARGB8888, protocol.ShmFormatXRGB8888} {
			if err := s.SendEvent(res, 0, protocol.UintArg(format)); err != nil {
				return err
			}
		}
		return nil
	}
}

func handleShm(c *Compositor) server.HandlerFunc {
	return func(s *server.Server, req server.Request) error {
		if req.Opcode != 0 {
			return nil
		}
		res, ok := c.reg.Lookup(req.Client(), req.ObjectID(0))
		if !ok {
			return nil
		}
		fd, size := req.FD(1), req.Int(2)
		handle, err := c.renderer.CreateShmPool(fd, size)
		if err != nil {
			code := protocol.ShmErrorInvalidFD
			if errors.Is(err, backend.ErrPoolSize) {
				code = protocol.ShmErrorInvalidStride
			}
			return server.NewProtocolError(req.Resource, code, "create_pool: %v", err)
		}
		pool := &shmPool{res: res, handle: handle}
		if err := c.reg.SetData(res, pool); err != nil {
			c.renderer.DestroyPool(handle)
			return err
		}
		return c.reg.SetDestructor(res, func(registry.Resource) { c.renderer.DestroyPool(handle) })
	}
}

func handleShmPool(c *Compositor) server.HandlerFunc {
	return func(s *server.Server, req server.Request) error {
		pool, err := registry.As[*shmPool](c.reg, req.Resource, protocol.WlShmPool)
		if err != nil {
			return err
		}
		switch req.Opcode {
		case 0:
			return c.createBuffer(pool, req)
		case 2:
			if err := c.renderer.ResizeShmPool(pool.handle, req.Int(0)); err != nil {
				return server.NewProtocolError(req.Resource, protocol.ShmErrorInvalidStride, "resize: %v", err)
			}
		}
		return nil
	}
}

func (c *Compositor) createBuffer(pool *shmPool, req server.Request) error {
	res, ok := c.reg.Lookup(req.Client(), req.ObjectID(0))
	if !ok {
		return nil
	}
	offset, width, height, stride := req.Int(1), req.Int(2), req.Int(3), req.Int(4)
	format := req.Uint(5)
	handle, err := c.renderer.CreateBuffer(pool.handle, offset, width, height, stride, format)
	switch {
	case errors.Is(err, backend.ErrInvalidFormat):
		return server.NewProtocolError(pool.res, protocol.ShmErrorInvalidFormat, "create_buffer: %v", err)
	case err != nil:
		return server.NewProtocolError(pool.res, protocol.ShmErrorInvalidStride, "create_buffer: %v", err)
	}
	buf := &Buffer{comp: c, res: res, handle: handle, width: width, height: height}
	if err := c.reg.SetData(res, buf); err != nil {
		c.renderer.DestroyBuffer(handle)
		return err
	}
	debugLog.Printf("compositor: %s is %dx%d stride=%d format=%d", res, width, height, stride, format)
	return c.reg.SetDestructor(res, func(registry.Resource) {
		if buf.surface != nil {
			buf.surface.forgetBuffer(buf)
		}
		c.renderer.DestroyBuffer(handle)
	})
}
