package lsm

const nilNode int32 = -1

// node is one AVL tree node. Children are indices into the arena.
type node struct {
	rec    Record
	left   int32
	right  int32
	height int32
}

// MemTable is an in-memory write buffer backed by an AVL tree stored in an
// arena of nodes. Nodes are never removed; a delete is a Put of Tombstone.
//
// MemTable is not safe for concurrent use. DB serializes access to it.
type MemTable struct {
	nodes    []node
	root     int32
	capacity int // Bytes before the table counts as full
}

// NewMemTable creates an empty MemTable that is full at capacity bytes
func NewMemTable(capacity int) *MemTable {
	return &MemTable{
		nodes:    make([]node, 0, 64),
		root:     nilNode,
		capacity: capacity,
	}
}

// Put inserts or overwrites key. It returns true when a new node was
// created, which is the only case that grows Size.
func (mt *MemTable) Put(key, value int32) bool {
	before := len(mt.nodes)
	mt.root = mt.insert(mt.root, key, value)
	return len(mt.nodes) > before
}

// Get returns the stored value for key, which may be Tombstone
func (mt *MemTable) Get(key int32) (int32, bool) {
	cur := mt.root
	for cur != nilNode {
		n := &mt.nodes[cur]
		switch {
		case key == n.rec.Key:
			return n.rec.Value, true
		case key < n.rec.Key:
			cur = n.left
		default:
			cur = n.right
		}
	}
	return 0, false
}

// Scan returns records with lo <= key <= hi in ascending order, tombstones
// included
func (mt *MemTable) Scan(lo, hi int32) []Record {
	results := make([]Record, 0)
	if lo > hi {
		return results
	}
	return mt.scan(mt.root, lo, hi, results)
}

// Records returns every record in ascending key order
func (mt *MemTable) Records() []Record {
	out := make([]Record, 0, len(mt.nodes))
	return mt.inorder(mt.root, out)
}

// Size returns the accounted size in bytes
func (mt *MemTable) Size() int {
	return len(mt.nodes) * RecordSize
}

// Capacity returns the configured flush threshold in bytes
func (mt *MemTable) Capacity() int {
	return mt.capacity
}

// IsFull returns true if MemTable should be flushed
func (mt *MemTable) IsFull() bool {
	return mt.Size() >= mt.capacity
}

// Len returns the number of distinct keys
func (mt *MemTable) Len() int {
	return len(mt.nodes)
}

// Height returns the height of the tree, 0 when empty
func (mt *MemTable) Height() int {
	return int(mt.height(mt.root))
}

func (mt *MemTable) height(i int32) int32 {
	if i == nilNode {
		return 0
	}
	return mt.nodes[i].height
}

func (mt *MemTable) balance(i int32) int32 {
	if i == nilNode {
		return 0
	}
	return mt.height(mt.nodes[i].left) - mt.height(mt.nodes[i].right)
}

func (mt *MemTable) fixHeight(i int32) {
	n := &mt.nodes[i]
	n.height = max(mt.height(n.left), mt.height(n.right)) + 1
}

func (mt *MemTable) rotateRight(y int32) int32 {
	x := mt.nodes[y].left
	mt.nodes[y].left = mt.nodes[x].right
	mt.nodes[x].right = y
	mt.fixHeight(y)
	mt.fixHeight(x)
	return x
}

func (mt *MemTable) rotateLeft(x int32) int32 {
	y := mt.nodes[x].right
	mt.nodes[x].right = mt.nodes[y].left
	mt.nodes[y].left = x
	mt.fixHeight(x)
	mt.fixHeight(y)
	return y
}

func (mt *MemTable) insert(i int32, key, value int32) int32 {
	if i == nilNode {
		mt.nodes = append(mt.nodes, node{
			rec:    Record{Key: key, Value: value},
			left:   nilNode,
			right:  nilNode,
			height: 1,
		})
		return int32(len(mt.nodes) - 1)
	}

	// Indices stay valid across append; pointers into mt.nodes would not.
	switch {
	case key < mt.nodes[i].rec.Key:
		child := mt.insert(mt.nodes[i].left, key, value)
		mt.nodes[i].left = child
	case key > mt.nodes[i].rec.Key:
		child := mt.insert(mt.nodes[i].right, key, value)
		mt.nodes[i].right = child
	default:
		mt.nodes[i].rec.Value = value
		return i
	}

	mt.fixHeight(i)

	bf := mt.balance(i)
	if bf > 1 {
		if key > mt.nodes[mt.nodes[i].left].rec.Key {
			mt.nodes[i].left = mt.rotateLeft(mt.nodes[i].left)
		}
		return mt.rotateRight(i)
	}
	if bf < -1 {
		if key < mt.nodes[mt.nodes[i].right].rec.Key {
			mt.nodes[i].right = mt.rotateRight(mt.nodes[i].right)
		}
		return mt.rotateLeft(i)
	}
	return i
}

func (mt *MemTable) scan(i int32, lo, hi int32, out []Record) []Record {
	if i == nilNode {
		return out
	}
	n := mt.nodes[i]
	if lo < n.rec.Key {
		out = mt.scan(n.left, lo, hi, out)
	}
	if lo <= n.rec.Key && n.rec.Key <= hi {
		out = append(out, n.rec)
	}
	if n.rec.Key < hi {
		out = mt.scan(n.right, lo, hi, out)
	}
	return out
}

func (mt *MemTable) inorder(i int32, out []Record) []Record {
	if i == nilNode {
		return out
	}
	n := mt.nodes[i]
	out = mt.inorder(n.left, out)
	out = append(out, n.rec)
	return mt.inorder(n.right, out)
}
