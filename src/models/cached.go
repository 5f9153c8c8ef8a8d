package models

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/Protocol-Lattice/agentforum/src/cache"
)

// CachedOracle wraps an Oracle and caches deterministic completions.
// Calls with a positive temperature are sampled and always go to the inner oracle.
type CachedOracle struct {
	Oracle   Oracle
	Cache    *cache.LRU[Completion]
	FilePath string
}

// NewCachedOracle creates a new CachedOracle wrapper.
func NewCachedOracle(oracle Oracle, size int, ttl time.Duration, filePath string) *CachedOracle {
	c := &CachedOracle{
		Oracle:   oracle,
		Cache:    cache.NewLRU[Completion](size, ttl),
		FilePath: filePath,
	}
	if filePath != "" {
		c.load()
	}
	return c
}

func (c *CachedOracle) load() {
	f, err := os.Open(c.FilePath)
	if err != nil {
		return // missing file means a cold cache
	}
	defer f.Close()

	var dump map[string]cache.Entry[Completion]
	if err := json.NewDecoder(f).Decode(&dump); err == nil {
		c.Cache.Restore(dump)
	}
}

func (c *CachedOracle) save() {
	if c.FilePath == "" {
		return
	}
	dump := c.Cache.Dump()

	tmp := c.FilePath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return
	}
	if err := json.NewEncoder(f).Encode(dump); err != nil {
		f.Close()
		os.Remove(tmp)
		return
	}
	f.Close()
	os.Rename(tmp, c.FilePath)
}

// Complete checks the cache before calling the underlying oracle.
func (c *CachedOracle) Complete(ctx context.Context, transcript []Message, opts Options) (Completion, error) {
	if opts.Temperature > 0 {
		return c.Oracle.Complete(ctx, transcript, opts)
	}

	key, err := cacheKey(transcript, opts)
	if err != nil {
		return c.Oracle.Complete(ctx, transcript, opts)
	}
	if val, ok := c.Cache.Get(key); ok {
		return val, nil
	}

	res, err := c.Oracle.Complete(ctx, transcript, opts)
	if err != nil {
		return Completion{}, err
	}

	c.Cache.Set(key, res)
	c.save()
	return res, nil
}

func cacheKey(transcript []Message, opts Options) (string, error) {
	t, err := json.Marshal(transcript)
	if err != nil {
		return "", err
	}
	o, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return cache.HashKey(string(t), string(o)), nil
}
