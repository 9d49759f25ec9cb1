package interceptors

import (
	"slices"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"google.golang.org/grpc"
)

// chain is an ordered set of named items. It is not safe for concurrent use.
type chain[T any] struct {
	order []string
	items map[string]T
}

func newChain[T any]() chain[T] {
	return chain[T]{items: make(map[string]T)}
}

// Exists reports whether id is in the chain.
func (c *chain[T]) Exists(id string) bool {
	_, ok := c.items[id]
	return ok
}

// IDs returns the ids in execution order.
func (c *chain[T]) IDs() []string {
	return slices.Clone(c.order)
}

// Push appends item. It returns false if id is already taken.
//
//	Push("b"): a -> a, b
func (c *chain[T]) Push(id string, item T) bool {
	if c.Exists(id) {
		return false
	}
	c.items[id] = item
	c.order = append(c.order, id)
	return true
}

// InsertAfter places item right after afterID.
//
//	InsertAfter("a", "c"): a, b -> a, c, b
func (c *chain[T]) InsertAfter(afterID, id string, item T) bool {
	return c.insert(afterID, id, item, 1)
}

// InsertBefore places item right before beforeID.
//
//	InsertBefore("b", "c"): a, b -> a, c, b
func (c *chain[T]) InsertBefore(beforeID, id string, item T) bool {
	return c.insert(beforeID, id, item, 0)
}

func (c *chain[T]) insert(anchor, id string, item T, offset int) bool {
	if c.Exists(id) || !c.Exists(anchor) {
		return false
	}
	c.order = slices.Insert(c.order, slices.Index(c.order, anchor)+offset, id)
	c.items[id] = item
	return true
}

// Delete removes id.
func (c *chain[T]) Delete(id string) bool {
	if !c.Exists(id) {
		return false
	}
	i := slices.Index(c.order, id)
	c.order = slices.Delete(c.order, i, i+1)
	delete(c.items, id)
	return true
}

// Replace swaps the item registered under id, keeping its position.
func (c *chain[T]) Replace(id string, item T) bool {
	if !c.Exists(id) {
		return false
	}
	c.items[id] = item
	return true
}

func (c *chain[T]) ordered() []T {
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// UnaryServerInterceptorChain builds a grpc.UnaryServerInterceptor from named steps.
type UnaryServerInterceptorChain struct {
	chain[grpc.UnaryServerInterceptor]
}

// NewUnaryServerInterceptorChain returns an empty chain.
func NewUnaryServerInterceptorChain() *UnaryServerInterceptorChain {
	return &UnaryServerInterceptorChain{chain: newChain[grpc.UnaryServerInterceptor]()}
}

// Commit chains the interceptors in order.
func (c *UnaryServerInterceptorChain) Commit() grpc.UnaryServerInterceptor {
	return grpcmiddleware.ChainUnaryServer(c.ordered()...)
}
