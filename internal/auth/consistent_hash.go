package auth

import (
	"hash/crc32"
	"sort"
	"strconv"
	"sync"
)

// ConsistentHashRing picks the auth cache node responsible for a token so
// repeated validations of the same session land on the same shard.
type ConsistentHashRing struct {
	hash       func(data []byte) uint32
	replicas   int
	keys       []int // sorted virtual node hashes
	hashMap    map[int]string
	mu         sync.RWMutex
	nodeLookup map[string]struct{}
}

// NewConsistentHashRing builds the ring. An empty node list gets a single
// default node so lookups never return "".
func NewConsistentHashRing(nodes []string, replicas int) *ConsistentHashRing {
	if replicas <= 0 {
		replicas = 50
	}
	if len(nodes) == 0 {
		nodes = []string{"auth-node-default"}
	}
	ch := &ConsistentHashRing{
		hash:       crc32.ChecksumIEEE,
		replicas:   replicas,
		hashMap:    make(map[int]string),
		nodeLookup: make(map[string]struct{}),
	}
	ch.Add(nodes...)
	return ch
}

// Add registers nodes, skipping ones already present.
func (c *ConsistentHashRing) Add(nodes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, node := range nodes {
		if _, exists := c.nodeLookup[node]; exists {
			continue
		}
		c.nodeLookup[node] = struct{}{}
		for i := 0; i < c.replicas; i++ {
			hash := int(c.hash([]byte(node + "#" + strconv.Itoa(i))))
			c.keys = append(c.keys, hash)
			c.hashMap[hash] = node
		}
	}
	sort.Ints(c.keys)
}

// GetNode returns the node owning key.
func (c *ConsistentHashRing) GetNode(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.keys) == 0 {
		return ""
	}
	hash := int(c.hash([]byte(key)))
	idx := sort.Search(len(c.keys), func(i int) bool { return c.keys[i] >= hash })
	if idx == len(c.keys) {
		idx = 0
	}
	return c.hashMap[c.keys[idx]]
}
