// Package rig drives a named hand skeleton from hand-pose samples.
package rig

import (
	"sync"
)

// Bone is a mutable joint node of a skeleton. Matrix is the joint transform
// relative to the hand root, column-major.
type Bone struct {
	Name   string
	Matrix [16]float32
}

// Skeleton resolves joint names to bones. It is implemented by whatever
// loads the hand model.
type Skeleton interface {
	Bone(name string) (*Bone, bool)
}

// Model is an in-memory skeleton holding a fixed set of named bones.
type Model struct {
	mu    sync.RWMutex
	bones map[string]*Bone
}

var identity = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// NewModel creates a model with one identity bone per name.
func NewModel(names ...string) *Model {
	m := &Model{bones: make(map[string]*Bone, len(names))}
	for _, n := range names {
		m.bones[n] = &Bone{Name: n, Matrix: identity}
	}
	return m
}

// Bone implements Skeleton.
func (m *Model) Bone(name string) (*Bone, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bones[name]
	return b, ok
}

// Snapshot copies every bone matrix. It must not run concurrently with a
// Binding.Update on the same model.
func (m *Model) Snapshot() map[string][16]float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][16]float32, len(m.bones))
	for n, b := range m.bones {
		out[n] = b.Matrix
	}
	return out
}
