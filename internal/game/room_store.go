// internal/game/room_store.go
package game

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
)

// CodeLength is the fixed length of a room code.
const CodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxCodeAttempts bounds the random draws before falling back to a
// deterministic counter-based code, so allocation always terminates.
const maxCodeAttempts = 12

// RoomStore is the registry of live rooms keyed by room code. Entries are
// only added and removed here; all in-place mutation happens under the
// individual room's own lock.
type RoomStore struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	fallbackSeq uint64

	genCode func() string // overridable in tests
}

// NewRoomStore returns an empty registry.
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:   make(map[string]*Room),
		genCode: randomCode,
	}
}

// Allocate reserves a code unique among live rooms, invokes build with it,
// and registers the resulting room. Code generation and insertion happen
// under one lock so two concurrent creations can never share a code.
func (s *RoomStore) Allocate(build func(code string) *Room) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := ""
	for i := 0; i < maxCodeAttempts; i++ {
		c := s.genCode()
		if _, taken := s.rooms[c]; !taken {
			code = c
			break
		}
	}
	for code == "" {
		s.fallbackSeq++
		c := fmt.Sprintf("%0*d", CodeLength, s.fallbackSeq%1000000)
		if _, taken := s.rooms[c]; !taken {
			code = c
		}
	}

	room := build(code)
	s.rooms[code] = room
	return room
}

// Get looks up a live room by code.
func (s *RoomStore) Get(code string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	return r, ok
}

// Delete removes a room from the registry.
func (s *RoomStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

// All returns a snapshot of the live rooms, for disconnect handling and
// the periodic expiry sweep.
func (s *RoomStore) All() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// randomCode draws CodeLength characters uniformly from the uppercase
// alphanumeric alphabet using crypto/rand.
func randomCode() string {
	buf := make([]byte, CodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			panic(err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}
