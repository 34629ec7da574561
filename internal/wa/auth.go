package wa

import (
	"context"
	"fmt"

	"github.com/involvex/warelay/internal/bus"
)

// StartQRAuth begins the QR pairing flow. QR codes and the terminal
// outcome are published on the bus; the push hub renders codes for
// connected clients. Blocks until the flow resolves or ctx is done.
func (a *Adapter) StartQRAuth(ctx context.Context) error {
	if a.IsLoggedIn() {
		return fmt.Errorf("already logged in")
	}
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get QR channel: %w", err)
	}

	// Connect must be called after GetQRChannel.
	if err := a.Connect(); err != nil {
		a.bus.Publish(bus.Now(bus.KindSessionAuthFailed, err.Error()))
		return err
	}

	for item := range qrChan {
		switch item.Event {
		case "code":
			a.bus.Publish(bus.Now(bus.KindSessionQR, item.Code))
		case "success":
			a.bus.Publish(bus.Now(bus.KindSessionAuth, nil))
			return nil
		case "timeout":
			a.bus.Publish(bus.Now(bus.KindSessionAuthFailed, "timeout"))
			return fmt.Errorf("QR pairing timed out")
		default:
			if item.Error != nil {
				a.bus.Publish(bus.Now(bus.KindSessionAuthFailed, item.Error.Error()))
				return item.Error
			}
		}
	}
	return ctx.Err()
}
