package secobj

import (
	"crypto/sha256"

	lru "github.com/hashicorp/golang-lru/v2"
)

// engineCache keeps expanded key schedules keyed by component name and key
// digest, so a re-keyed component never reuses a stale schedule. Every key
// must have the size the context was configured with.
type engineCache struct {
	cache    *lru.Cache[engineKey, *CTREngine]
	keySize  KeySize
	parallel ParallelConfig
}

type engineKey struct {
	name   string
	digest [sha256.Size]byte
}

func newEngineCache(size int, keySize KeySize, parallel ParallelConfig) (*engineCache, error) {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[engineKey, *CTREngine](size)
	if err != nil {
		return nil, err
	}
	return &engineCache{cache: c, keySize: keySize, parallel: parallel}, nil
}

// engineFor returns the cached engine for c, expanding the key on a miss.
func (ec *engineCache) engineFor(c *Component) (*CTREngine, error) {
	k := engineKey{name: c.Name, digest: sha256.Sum256(c.Key)}
	if e, ok := ec.cache.Get(k); ok {
		return e, nil
	}
	if err := ValidateKey(c.Key, ec.keySize); err != nil {
		return nil, err
	}
	e, err := NewCTREngine(c.Key)
	if err != nil {
		return nil, err
	}
	e.SetParallel(ec.parallel)
	ec.cache.Add(k, e)
	return e, nil
}

func (ec *engineCache) purge() {
	ec.cache.Purge()
}

func (ec *engineCache) len() int {
	return ec.cache.Len()
}
