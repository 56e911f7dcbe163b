package davis

import "github.com/chrissnell/vantaged/internal/types"

// EventType identifies a driver completion event.
type EventType int

const (
	// EventStationUp follows the first LOOP after the startup handshake.
	EventStationUp EventType = iota
	// EventReadingsDone carries each later LOOP packet.
	EventReadingsDone
	// EventArchiveRecord carries one new archive record.
	EventArchiveRecord
	// EventStationError is sent when the driver enters the error state.
	EventStationError
)

func (t EventType) String() string {
	switch t {
	case EventStationUp:
		return "station-up"
	case EventReadingsDone:
		return "readings-done"
	case EventArchiveRecord:
		return "archive-record"
	case EventStationError:
		return "station-error"
	}
	return "unknown"
}

// Event is sent on the Events channel.
type Event struct {
	Type    EventType
	Loop    *types.LoopPacket
	Archive *types.ArchivePacket
}
