package kvfs

import (
	"sync/atomic"
)

// mirror is the in-memory copy of every inode. It is the only thing reads
// consult. The owning Storage serializes access; only the statistics are
// updated under a read lock and so are atomic.
type mirror struct {
	nodes  map[ID]Inode
	hits   atomic.Uint64
	misses atomic.Uint64
}

func newMirror() *mirror {
	return &mirror{nodes: make(map[ID]Inode)}
}

// Get returns the stored inode itself, not a copy.
func (m *mirror) Get(id ID) (Inode, bool) {
	node, ok := m.nodes[id]
	if ok {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	return node, ok
}

func (m *mirror) Put(id ID, node Inode) {
	m.nodes[id] = node
}

func (m *mirror) Delete(id ID) {
	delete(m.nodes, id)
}

// Resolve walks p from the root through directory entries.
func (m *mirror) Resolve(p Path) (ID, Code) {
	id := RootID
	for _, name := range p {
		node, ok := m.Get(id)
		if !ok {
			return ID{}, CodeNotFound
		}
		dir, ok := node.(*Directory)
		if !ok {
			return ID{}, CodeNotADirectory
		}
		child, ok := dir.Entries.Find(name)
		if !ok {
			return ID{}, CodeNotFound
		}
		id = child
	}
	return id, CodeOK
}

// Lookup resolves p and returns the stored inode, not a copy.
func (m *mirror) Lookup(p Path) (ID, Inode, Code) {
	id, code := m.Resolve(p)
	if code != CodeOK {
		return ID{}, nil, code
	}
	node, ok := m.Get(id)
	if !ok {
		return ID{}, nil, CodeNotFound
	}
	return id, node, CodeOK
}

// directory returns the Directory stored under id.
func (m *mirror) directory(id ID) (*Directory, Code) {
	node, ok := m.nodes[id]
	if !ok {
		return nil, CodeNotFound
	}
	dir, ok := node.(*Directory)
	if !ok {
		return nil, CodeNotADirectory
	}
	return dir, CodeOK
}

// subtree returns id and every ID reachable below it.
func (m *mirror) subtree(id ID) []ID {
	var ids []ID
	seen := make(map[ID]bool)
	stack := []ID{id}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		if dir, ok := m.nodes[id].(*Directory); ok {
			for _, e := range dir.Entries {
				stack = append(stack, e.ID)
			}
		}
	}
	return ids
}

// Replace swaps the whole content for nodes.
func (m *mirror) Replace(nodes map[ID]Inode) {
	m.nodes = nodes
}

func (m *mirror) Len() int {
	return len(m.nodes)
}

// Copy returns a deep copy of every inode.
func (m *mirror) Copy() map[ID]Inode {
	out := make(map[ID]Inode, len(m.nodes))
	for id, node := range m.nodes {
		out[id] = node.Clone()
	}
	return out
}

func (m *mirror) Stats() MirrorStats {
	return MirrorStats{
		Size:   len(m.nodes),
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
	}
}

// MirrorStats describes the in-memory inode mirror.
type MirrorStats struct {
	Size   int    // Number of inodes held
	Hits   uint64 // Lookups that found an inode
	Misses uint64 // Lookups that found nothing
}

// HitRate returns the hit rate as a percentage.
func (s MirrorStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
