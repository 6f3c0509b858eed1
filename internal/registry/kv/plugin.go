package kv

import (
	"context"
	"errors"
	"fmt"
)

// Buckets used by the service.
const (
	BucketSkills     = "skills"
	BucketCritiques  = "critiques"
	BucketProvenance = "provenance"
)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("kv: key not found")

// KeyValueStore defines the interface for binary-safe key-value backends.
type KeyValueStore interface {
	Put(ctx context.Context, bucket, key string, value []byte) error
	// Get returns ErrKeyNotFound when the key is absent.
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, bucket, key string) error
	// List returns every key/value pair in a bucket.
	List(ctx context.Context, bucket string) (map[string][]byte, error)
	Close() error
	// Name returns the plugin name (e.g. "badger", "redis", "memory").
	Name() string
}

// Loader creates a KeyValueStore from config.
type Loader func(ctx context.Context) (KeyValueStore, error)

// Plugin represents a key-value store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a key-value store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered key-value store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named key-value store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown key-value store %q; valid: %v", name, Names())
}
