package cache

import (
	"container/list"
	"image"
	"sync"

	"tileview/internal/tile"
)

type entry struct {
	coord tile.Coordinate
	img   image.Image
}

// MemoryStore is an in-memory LRU store of decoded tiles. A maxSize of zero
// or less means unbounded.
type MemoryStore struct {
	mu      sync.Mutex
	maxSize int
	items   map[tile.Coordinate]*list.Element
	lruList *list.List
}

func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{
		maxSize: maxSize,
		items:   make(map[tile.Coordinate]*list.Element),
		lruList: list.New(),
	}
}

func (s *MemoryStore) Has(coord tile.Coordinate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.items[coord]
	return ok
}

func (s *MemoryStore) Get(coord tile.Coordinate) (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[coord]
	if !ok {
		return nil, false
	}

	s.lruList.MoveToFront(elem)
	return elem.Value.(*entry).img, true
}

func (s *MemoryStore) Set(coord tile.Coordinate, img image.Image) []tile.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[coord]; ok {
		elem.Value.(*entry).img = img
		s.lruList.MoveToFront(elem)
		return nil
	}

	var evicted []tile.Coordinate
	for s.maxSize > 0 && s.lruList.Len() >= s.maxSize {
		oldest := s.lruList.Back()
		if oldest == nil {
			break
		}
		old := oldest.Value.(*entry)
		delete(s.items, old.coord)
		s.lruList.Remove(oldest)
		evicted = append(evicted, old.coord)
	}

	ent := &entry{coord: coord, img: img}
	s.items[coord] = s.lruList.PushFront(ent)
	return evicted
}

func (s *MemoryStore) Clear() []tile.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := make([]tile.Coordinate, 0, len(s.items))
	for coord := range s.items {
		evicted = append(evicted, coord)
	}

	s.items = make(map[tile.Coordinate]*list.Element)
	s.lruList = list.New()
	return evicted
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lruList.Len()
}
