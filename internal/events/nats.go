package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"agritrade/internal/domain"
	applog "agritrade/internal/log"
)

// NATSPublisher mirrors domain events to a NATS subject per auction so
// external consumers (notification dispatch, archival) can subscribe.
// Publishing is best-effort: failures are logged and never surfaced to the
// transition that produced the event.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string // prefix, e.g. "auction.events"
}

func NewNATSPublisher(url, subjectPrefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			applog.BgError("events.nats.disconnect", err, nil)
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, subject: subjectPrefix}, nil
}

func (p *NATSPublisher) Publish(evt domain.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		applog.BgError("events.nats.marshal", err, map[string]any{"kind": evt.Kind})
		return
	}
	subj := p.subject + "." + evt.AuctionID
	if err := p.nc.Publish(subj, payload); err != nil {
		applog.BgError("events.nats.publish", err, map[string]any{"subject": subj})
	}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
