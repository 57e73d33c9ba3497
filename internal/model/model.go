package model

// IOCounters holds the cumulative byte counters of a single network interface.
type IOCounters struct {
	BytesSent uint64
	BytesRecv uint64
}

// ConnectionKey identifies one inet connection. All six fields take part in
// equality, so two connections differing only in status are distinct.
type ConnectionKey struct {
	LocalIP    string
	LocalPort  uint32
	RemoteIP   string
	RemotePort uint32
	Status     string
	PID        int32
}

// ConnectionSet is a set of connection keys.
type ConnectionSet map[ConnectionKey]struct{}

// NewConnectionSet returns a set containing the given keys.
func NewConnectionSet(keys ...ConnectionKey) ConnectionSet {
	s := make(ConnectionSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s ConnectionSet) Add(k ConnectionKey) {
	s[k] = struct{}{}
}

// Contains reports whether k is in the set. A nil set contains nothing.
func (s ConnectionSet) Contains(k ConnectionKey) bool {
	_, ok := s[k]
	return ok
}

func (s ConnectionSet) Len() int {
	return len(s)
}

// Union adds every key of other to s.
func (s ConnectionSet) Union(other ConnectionSet) {
	for k := range other {
		s[k] = struct{}{}
	}
}

// Sample is a point-in-time snapshot of the host's network state.
// It must not be modified once handed out by a Sampler.
type Sample struct {
	// Timestamp is expressed in seconds since the Unix epoch.
	Timestamp    float64
	IOCounters   map[string]IOCounters
	Connections  ConnectionSet
	ProcessNames map[int32]string
}

// ProcessName returns the resolved name of pid, if the lookup succeeded.
func (s *Sample) ProcessName(pid int32) (string, bool) {
	name, ok := s.ProcessNames[pid]
	return name, ok
}
