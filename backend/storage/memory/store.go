package memory

import (
	"errors"
	"hash/fnv"
	"slices"
	"strings"
	"sync"

	"github.com/adwski/proctor-signaling/backend/model"
)

const (
	DefaultShards = 32
)

var (
	ErrRoomNotFound = errors.New("room is not found")
)

// members is keyed by endpoint id.
type members map[string]model.Endpoint

type shard struct {
	mx *sync.RWMutex
	db map[string]members
}

// MemStore keeps session id -> member set. Sessions are spread over
// independently locked shards; every operation on a single session
// runs under that session's shard lock.
// A room is present in the store only while it has members.
type MemStore struct {
	shards []*shard
}

func NewMemStore(shards int) *MemStore {
	if shards <= 0 {
		shards = DefaultShards
	}
	ms := &MemStore{
		shards: make([]*shard, shards),
	}
	for i := range ms.shards {
		ms.shards[i] = &shard{
			mx: &sync.RWMutex{},
			db: make(map[string]members),
		}
	}
	return ms
}

func (ms *MemStore) shardFor(sessionID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return ms.shards[h.Sum32()%uint32(len(ms.shards))]
}

// Add puts endpoint into the room, creating the room if needed.
// Adding an existing member is a no-op. Reports whether the room was created.
func (ms *MemStore) Add(sessionID string, ep model.Endpoint) bool {
	sh := ms.shardFor(sessionID)
	sh.mx.Lock()
	defer sh.mx.Unlock()

	room, ok := sh.db[sessionID]
	if !ok {
		room = make(members)
		sh.db[sessionID] = room
	}
	room[ep.ID()] = ep
	return !ok
}

// Remove takes endpoint out of the room and drops the room if it is now empty.
// Unknown rooms and non-members are ignored.
func (ms *MemStore) Remove(sessionID string, ep model.Endpoint) (removed, deleted bool) {
	sh := ms.shardFor(sessionID)
	sh.mx.Lock()
	defer sh.mx.Unlock()

	room, ok := sh.db[sessionID]
	if !ok {
		return false, false
	}
	if _, ok = room[ep.ID()]; !ok {
		return false, false
	}
	delete(room, ep.ID())
	if len(room) == 0 {
		delete(sh.db, sessionID)
		return true, true
	}
	return true, false
}

// Members returns a snapshot of room members, nil if the room does not exist.
func (ms *MemStore) Members(sessionID string) []model.Endpoint {
	sh := ms.shardFor(sessionID)
	sh.mx.RLock()
	defer sh.mx.RUnlock()

	room, ok := sh.db[sessionID]
	if !ok {
		return nil
	}
	out := make([]model.Endpoint, 0, len(room))
	for _, ep := range room {
		out = append(out, ep)
	}
	return out
}

func (ms *MemStore) GetRoom(sessionID string) (model.RoomInfo, error) {
	sh := ms.shardFor(sessionID)
	sh.mx.RLock()
	defer sh.mx.RUnlock()

	room, ok := sh.db[sessionID]
	if !ok {
		return model.RoomInfo{}, ErrRoomNotFound
	}
	return model.RoomInfo{SessionID: sessionID, Members: len(room)}, nil
}

// Rooms lists all rooms sorted by session id.
// Shards are visited one at a time, so the result is not a global point-in-time view.
func (ms *MemStore) Rooms() []model.RoomInfo {
	out := make([]model.RoomInfo, 0)
	for _, sh := range ms.shards {
		sh.mx.RLock()
		for id, room := range sh.db {
			out = append(out, model.RoomInfo{SessionID: id, Members: len(room)})
		}
		sh.mx.RUnlock()
	}
	slices.SortFunc(out, func(a, b model.RoomInfo) int {
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return out
}
