package daemon

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

// maxEventLine bounds a single newline-delimited event.
const maxEventLine = 64 * 1024

// wireEvent is the newline-delimited JSON form of a SystemEvent. The type
// field selects which of the remaining fields apply.
type wireEvent struct {
	Type string `json:"type"`

	PackageID        string `json:"package_id,omitempty"`
	EventClass       string `json:"event_class,omitempty"`
	IsFullscreen     bool   `json:"is_fullscreen,omitempty"`
	RawSourcePresent *bool  `json:"raw_source_present,omitempty"`

	ViewID          string `json:"view_id,omitempty"`
	SourceID        string `json:"source_id,omitempty"`
	ItemCount       int    `json:"item_count,omitempty"`
	MaxScrollExtent *int   `json:"max_scroll_extent,omitempty"`
	SourcePresent   *bool  `json:"source_present,omitempty"`

	Code            int   `json:"code,omitempty"`
	PressDurationMs int64 `json:"press_duration_ms,omitempty"`
}

// DecodeEvent parses one JSON event line.
func DecodeEvent(line []byte) (domain.SystemEvent, error) {
	var w wireEvent
	if err := sonic.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}

	switch w.Type {
	case domain.AppOpened{}.Kind():
		return domain.AppOpened{
			PackageID:        w.PackageID,
			EventClass:       w.EventClass,
			IsFullscreen:     w.IsFullscreen,
			RawSourcePresent: boolOr(w.RawSourcePresent, true),
		}, nil
	case domain.ScrollEvent{}.Kind():
		extent := -1
		if w.MaxScrollExtent != nil {
			extent = *w.MaxScrollExtent
		}
		return domain.ScrollEvent{
			ViewID:          w.ViewID,
			EventClass:      w.EventClass,
			SourceID:        w.SourceID,
			ItemCount:       w.ItemCount,
			MaxScrollExtent: extent,
			SourcePresent:   boolOr(w.SourcePresent, true),
		}, nil
	case domain.ScreenTurnedOff{}.Kind():
		return domain.ScreenTurnedOff{}, nil
	case domain.HardwareKey{}.Kind():
		return domain.HardwareKey{Code: w.Code, PressDurationMs: w.PressDurationMs}, nil
	case "":
		return nil, fmt.Errorf("malformed event: missing type")
	default:
		return nil, fmt.Errorf("unknown event type %q", w.Type)
	}
}

// EncodeEvent renders ev as one JSON line without the trailing newline.
func EncodeEvent(ev domain.SystemEvent) ([]byte, error) {
	w := wireEvent{Type: ev.Kind()}
	switch e := ev.(type) {
	case domain.AppOpened:
		w.PackageID = e.PackageID
		w.EventClass = e.EventClass
		w.IsFullscreen = e.IsFullscreen
		w.RawSourcePresent = &e.RawSourcePresent
	case domain.ScrollEvent:
		w.ViewID = e.ViewID
		w.EventClass = e.EventClass
		w.SourceID = e.SourceID
		w.ItemCount = e.ItemCount
		w.MaxScrollExtent = &e.MaxScrollExtent
		w.SourcePresent = &e.SourcePresent
	case domain.ScreenTurnedOff:
	case domain.HardwareKey:
		w.Code = e.Code
		w.PressDurationMs = e.PressDurationMs
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}
	return sonic.Marshal(w)
}

// ReadEvents decodes newline-delimited events from r into out until r is
// exhausted or ctx is canceled. Malformed lines are logged and skipped.
// out is closed on return.
func ReadEvents(ctx context.Context, r io.Reader, out chan<- domain.SystemEvent, logger *zap.Logger) error {
	defer close(out)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxEventLine)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		ev, err := DecodeEvent(line)
		if err != nil {
			logger.Debug("dropping event line", zap.Int("line", lineNo), zap.Error(err))
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	return nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
