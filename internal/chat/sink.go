package chat

import (
	"context"
	"errors"
)

// FanoutSink publishes the same side effects to every sink and joins their
// errors. A failing sink does not stop the others.
type FanoutSink []SideEffectSink

func (f FanoutSink) Publish(ctx context.Context, botID, conversationID string, effects []SideEffect) error {
	if len(effects) == 0 {
		return nil
	}
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, botID, conversationID, effects); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
