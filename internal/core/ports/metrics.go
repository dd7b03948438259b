package ports

import (
	"time"

	"bidcast/internal/core/domain"
)

// MetricsCollector records hub-side observability signals.
type MetricsCollector interface {
	RecordSessionOpened(role domain.Role)
	RecordSessionClosed(role domain.Role, duration time.Duration)
	SetViewerCount(count int)
	RecordMessage(kind string)
	RecordFrameBroadcast(bytes int)
	RecordFrameDropped()
	RecordMalformedMessage()
}
