// Package trace models the reference stream the core consumes, and the
// batch/header framing used by the (external) front-end and transport.
// Parsing the wire format itself is out of scope; this package only
// fixes the Go-level shape of what crosses that boundary.
package trace

import "fmt"

// Kind tags a single memory reference.
type Kind uint8

const (
	Read Kind = iota
	Write
	Writeback
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case Writeback:
		return "writeback"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// MessageKind is the tagged union recognised in a reference batch header,
// per spec: PROCESS_STARTING, PROCESS_FINISHING, INTER_PROCESS_BARRIERS,
// NEW_THREAD, THREAD_FINISHING, PROGRAM_EXITING, MEM_REQUESTS.
type MessageKind uint8

const (
	ProcessStarting MessageKind = iota
	ProcessFinishing
	InterProcessBarriers
	NewThread
	ThreadFinishing
	ProgramExiting
	MemRequests
)

func (m MessageKind) String() string {
	switch m {
	case ProcessStarting:
		return "PROCESS_STARTING"
	case ProcessFinishing:
		return "PROCESS_FINISHING"
	case InterProcessBarriers:
		return "INTER_PROCESS_BARRIERS"
	case NewThread:
		return "NEW_THREAD"
	case ThreadFinishing:
		return "THREAD_FINISHING"
	case ProgramExiting:
		return "PROGRAM_EXITING"
	case MemRequests:
		return "MEM_REQUESTS"
	default:
		return fmt.Sprintf("MessageKind(%d)", uint8(m))
	}
}

// Ref is a single memory reference (InsMem), immutable once handed to the
// core.
type Ref struct {
	Kind     Kind
	Process  int
	Thread   int
	Addr     uint64
	IssueAt  int64
}

// Header is the record prefixing a reference batch. On the wire the
// header record's addr field carries the record count (RecordCount) and
// its size field the origin thread id (ThreadID), per the external
// interface's tagged-union framing.
type Header struct {
	MessageKind MessageKind
	RecordCount int
	ThreadID    int
}

// Batch is a sequence of references prefixed by a Header. Batches are
// produced by the (external) instrumentation front-end and handed to the
// core one reference at a time by the driver (see cmd/uncoresim).
type Batch struct {
	Header Header
	Refs   []Ref
}
