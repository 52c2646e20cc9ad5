package migrate

import (
	"context"
	"io"
)

// ChanSource adapts a pushed event stream (a replication client, a test
// fixture) to the pull contract. Close the channel to end the stream.
type ChanSource struct {
	ch <-chan *Event
}

func NewChanSource(ch <-chan *Event) *ChanSource {
	return &ChanSource{ch: ch}
}

// EachEvent drains a source, handing every event to fn.
func EachEvent(ctx context.Context, src Source, fn func(*Event) error) error {
	for {
		ev, err := src.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

func (s *ChanSource) Next(ctx context.Context) (*Event, error) {
	select {
	case ev, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
