// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: registry/registry.go
// Summary: Owns clients, their object namespaces and the per-object user data.
// Usage: The server adds a client per connection; handlers look up, type and destroy resources here.
// Notes: Not safe for concurrent use; every mutation happens on the event-loop goroutine.

package registry

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/framegrace/texelway/protocol"
)

var (
	ErrUnknownClient  = errors.New("registry: unknown client")
	ErrStaleResource  = errors.New("registry: resource no longer exists")
	ErrIDInUse        = errors.New("registry: object id already in use")
	ErrAlreadyTyped   = errors.New("registry: resource interface already set")
	ErrResourceType   = errors.New("registry: resource has a different interface")
	ErrGlobalConflict = errors.New("registry: global already registered for interface")
)

// ClientID names a connected client for its lifetime. IDs are never reused.
type ClientID uint32

// Resource is a value handle to one live protocol object. Two handles are
// equal only if they name the same object incarnation: an id reused after
// destroy yields a handle with a new generation.
type Resource struct {
	Client    ClientID
	ID        uint32
	Interface protocol.InterfaceID
	Version   uint32
	gen       uint64
}

// IsZero reports whether r is the zero handle.
func (r Resource) IsZero() bool { return r.gen == 0 }

func (r Resource) String() string {
	return fmt.Sprintf("%s@%d(client %d)", r.Interface, r.ID, r.Client)
}

type object struct {
	res        Resource
	data       any
	destructor func(Resource)
}

type client struct {
	id      ClientID
	objects map[uint32]*object
	data    any
}

// Registry is the single owner of every client-scoped object and of the
// global capability table.
type Registry struct {
	clients    map[ClientID]*client
	nextClient ClientID
	nextGen    uint64
	globals    []Global
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{clients: make(map[ClientID]*client)}
}

// AddClient registers a new client with an empty namespace.
func (r *Registry) AddClient() ClientID {
	r.nextClient++
	id := r.nextClient
	r.clients[id] = &client{id: id, objects: make(map[uint32]*object)}
	debugLog.Printf("registry: client %d added", id)
	return id
}

// HasClient reports whether id is still connected.
func (r *Registry) HasClient(id ClientID) bool {
	_, ok := r.clients[id]
	return ok
}

// Clients returns the connected clients in ascending order.
func (r *Registry) Clients() []ClientID {
	ids := make([]ClientID, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RemoveClient destroys every object the client owns, newest id first, and
// forgets the client. It returns the number of objects destroyed.
func (r *Registry) RemoveClient(id ClientID) int {
	c, ok := r.clients[id]
	if !ok {
		return 0
	}
	ids := make([]uint32, 0, len(c.objects))
	for oid := range c.objects {
		ids = append(ids, oid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	removed := 0
	for _, oid := range ids {
		// Destructors may already have removed dependent objects.
		obj, ok := c.objects[oid]
		if !ok {
			continue
		}
		r.destroy(c, obj)
		removed++
	}
	delete(r.clients, id)
	debugLog.Printf("registry: client %d removed objects=%d", id, removed)
	return removed
}

// SetClientData attaches arbitrary per-client state.
func (r *Registry) SetClientData(id ClientID, data any) error {
	c, ok := r.clients[id]
	if !ok {
		return ErrUnknownClient
	}
	c.data = data
	return nil
}

// ClientData returns the value stored with SetClientData.
func (r *Registry) ClientData(id ClientID) any {
	if c, ok := r.clients[id]; ok {
		return c.data
	}
	return nil
}

// Create adds an object to a client's namespace.
func (r *Registry) Create(id ClientID, oid uint32, iface protocol.InterfaceID, version uint32) (Resource, error) {
	c, ok := r.clients[id]
	if !ok {
		return Resource{}, ErrUnknownClient
	}
	if oid == 0 {
		return Resource{}, fmt.Errorf("%w: id 0", ErrIDInUse)
	}
	if _, taken := c.objects[oid]; taken {
		return Resource{}, fmt.Errorf("%w: %d", ErrIDInUse, oid)
	}
	r.nextGen++
	res := Resource{Client: id, ID: oid, Interface: iface, Version: version, gen: r.nextGen}
	c.objects[oid] = &object{res: res}
	return res, nil
}

// Lookup resolves a client-scoped id to its current handle.
func (r *Registry) Lookup(id ClientID, oid uint32) (Resource, bool) {
	obj := r.object(id, oid)
	if obj == nil {
		return Resource{}, false
	}
	return obj.res, true
}

// ObjectInfo refreshes a handle, picking up an interface assigned since it
// was issued. It fails if the object was destroyed.
func (r *Registry) ObjectInfo(res Resource) (Resource, error) {
	obj, err := r.live(res)
	if err != nil {
		return Resource{}, err
	}
	return obj.res, nil
}

// Alive reports whether res still names a live object.
func (r *Registry) Alive(res Resource) bool {
	_, err := r.live(res)
	return err == nil
}

// Resources lists a client's objects in ascending id order.
func (r *Registry) Resources(id ClientID) []Resource {
	c, ok := r.clients[id]
	if !ok {
		return nil
	}
	out := make([]Resource, 0, len(c.objects))
	for _, obj := range c.objects {
		out = append(out, obj.res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetResourceInterface gives an untyped new-id object its interface. It may
// be called once per object.
func (r *Registry) SetResourceInterface(res Resource, iface protocol.InterfaceID, version uint32) (Resource, error) {
	obj, err := r.live(res)
	if err != nil {
		return Resource{}, err
	}
	if obj.res.Interface != protocol.Untyped {
		return Resource{}, fmt.Errorf("%w: %s", ErrAlreadyTyped, obj.res)
	}
	obj.res.Interface = iface
	obj.res.Version = version
	return obj.res, nil
}

// Downcast checks that res is a live object of interface iface.
func (r *Registry) Downcast(res Resource, iface protocol.InterfaceID) (Resource, error) {
	obj, err := r.live(res)
	if err != nil {
		return Resource{}, err
	}
	if obj.res.Interface != iface {
		return Resource{}, fmt.Errorf("%w: %s is not %s", ErrResourceType, obj.res, iface)
	}
	return obj.res, nil
}

// As downcasts res to iface and returns its user data as T.
func As[T any](r *Registry, res Resource, iface protocol.InterfaceID) (T, error) {
	var zero T
	checked, err := r.Downcast(res, iface)
	if err != nil {
		return zero, err
	}
	v, ok := r.object(checked.Client, checked.ID).data.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s carries %T", ErrResourceType, checked, r.object(checked.Client, checked.ID).data)
	}
	return v, nil
}

// SetData attaches user data to a live object.
func (r *Registry) SetData(res Resource, data any) error {
	obj, err := r.live(res)
	if err != nil {
		return err
	}
	obj.data = data
	return nil
}

// Data returns the user data of a live object.
func (r *Registry) Data(res Resource) (any, bool) {
	obj, err := r.live(res)
	if err != nil {
		return nil, false
	}
	return obj.data, true
}

// SetDestructor installs fn to run once when the object is destroyed, either
// explicitly or because its client went away.
func (r *Registry) SetDestructor(res Resource, fn func(Resource)) error {
	obj, err := r.live(res)
	if err != nil {
		return err
	}
	obj.destructor = fn
	return nil
}

// Destroy removes the object and runs its destructor.
func (r *Registry) Destroy(res Resource) error {
	obj, err := r.live(res)
	if err != nil {
		return err
	}
	r.destroy(r.clients[res.Client], obj)
	return nil
}

// Namespace exposes a client's objects to the codec.
func (r *Registry) Namespace(id ClientID) protocol.ObjectTable {
	return namespace{reg: r, client: id}
}

func (r *Registry) destroy(c *client, obj *object) {
	delete(c.objects, obj.res.ID)
	if obj.destructor != nil {
		fn := obj.destructor
		obj.destructor = nil
		fn(obj.res)
	}
}

func (r *Registry) object(id ClientID, oid uint32) *object {
	c, ok := r.clients[id]
	if !ok {
		return nil
	}
	return c.objects[oid]
}

func (r *Registry) live(res Resource) (*object, error) {
	obj := r.object(res.Client, res.ID)
	if obj == nil || obj.res.gen != res.gen {
		return nil, fmt.Errorf("%w: %s", ErrStaleResource, res)
	}
	return obj, nil
}

type namespace struct {
	reg    *Registry
	client ClientID
}

func (n namespace) InterfaceOf(id uint32) (protocol.InterfaceID, bool) {
	obj := n.reg.object(n.client, id)
	if obj == nil {
		return protocol.Untyped, false
	}
	return obj.res.Interface, true
}

func (n namespace) Allocate(id uint32, iface protocol.InterfaceID, version uint32) error {
	_, err := n.reg.Create(n.client, id, iface, version)
	return err
}

// LogObjects prints a client's object table, used when diagnosing protocol
// errors.
func (r *Registry) LogObjects(id ClientID, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	for _, res := range r.Resources(id) {
		logger.Printf("registry: client=%d id=%d interface=%s version=%d", res.Client, res.ID, res.Interface, res.Version)
	}
}
