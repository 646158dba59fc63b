package gateway

import "sync"

// Session identifies one logical connection to the service. The id
// is assigned by the remote side on READY and survives reconnects
// until a resume is rejected; the sequence number only ever grows.
type Session struct {
	mu         sync.Mutex
	id         string
	seq        int64
	hasSeq     bool
	shardIndex int
	shardCount int
}

// NewSession creates an empty session for a shard.
func NewSession(shardIndex, shardCount int) *Session {
	return &Session{
		shardIndex: shardIndex,
		shardCount: shardCount,
	}
}

// ID returns the remote-assigned session id, empty before handshake.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// SetID adopts the id from a READY payload.
func (s *Session) SetID(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// Seq returns the last-seen sequence number and whether one exists.
func (s *Session) Seq() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq, s.hasSeq
}

// ObserveSeq records a sequence number. The stored value is
// monotonic: a lower arrival is ignored and reported as false.
func (s *Session) ObserveSeq(n int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasSeq && n <= s.seq {
		return false
	}
	s.seq = n
	s.hasSeq = true
	return true
}

// Resumable reports whether the session can be resumed: it has an id
// and at least one observed sequence number.
func (s *Session) Resumable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id != "" && s.hasSeq
}

// Invalidate destroys the session identity. The next handshake will
// be a fresh Identify.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.id = ""
	s.seq = 0
	s.hasSeq = false
	s.mu.Unlock()
}

// Shard returns the shard index and count.
func (s *Session) Shard() (index, count int) {
	return s.shardIndex, s.shardCount
}
