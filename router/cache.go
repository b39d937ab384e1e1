package router

import (
	"hash/maphash"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Fingerprint identifies a cacheable routing request: the data model
// calls for "a fingerprint of (tenant, prompt-class, model-hint,
// options)". hash/maphash is sufficient here — nothing in the corpus
// pulls in a dedicated hashing library for a purpose this small, so
// reaching for one would just be an unjustified extra dependency.
type Fingerprint uint64

var fingerprintSeed = maphash.MakeSeed()

func fingerprint(req Request) Fingerprint {
	var h maphash.Hash
	h.SetSeed(fingerprintSeed)
	h.WriteString(req.Tenant)
	h.WriteByte(0)
	h.WriteString(string(detectContentClass(req.Prompt)))
	h.WriteByte(0)
	h.WriteString(req.ModelHint)
	h.WriteByte(0)
	h.WriteString(req.Language)
	h.WriteByte(byte(req.LatencyBudget))
	return Fingerprint(h.Sum64())
}

// decisionCache is the router's bounded, TTL'd decision cache. Cache
// hits must be observationally equivalent to a miss within a version
// epoch — Route never special-cases a cache hit's shape, only skips
// recomputation.
type decisionCache struct {
	lru *lru.LRU[Fingerprint, RoutingDecision]
}

func newDecisionCache(capacity int, ttl time.Duration) *decisionCache {
	return &decisionCache{lru: lru.NewLRU[Fingerprint, RoutingDecision](capacity, nil, ttl)}
}

func (c *decisionCache) get(fp Fingerprint) (RoutingDecision, bool) {
	return c.lru.Get(fp)
}

func (c *decisionCache) put(fp Fingerprint, decision RoutingDecision) {
	c.lru.Add(fp, decision)
}
