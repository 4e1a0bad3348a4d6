package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rexliu/credrelay/pkg/message"
	"github.com/rexliu/credrelay/pkg/messenger"
	"github.com/rexliu/credrelay/pkg/storage/sqlite"
)

// handle answers one mediated ceremony and records it.
func (d *daemon) handle(ctx context.Context, req messenger.Inbound) (message.Message, error) {
	c := sqlite.Ceremony{
		Origin:     req.Origin,
		ID:         req.ID,
		Type:       string(req.Message.Type()),
		ReceivedAt: time.Now(),
	}
	var resp message.Message
	switch msg := req.Message.(type) {
	case message.CredentialCreationRequest:
		c.RPID = rpIDFor(msg.Data)
		approved, reason := d.policy.decide(req.Origin, msg.Data)
		c.Decision = sqlite.DecisionApproved
		if !approved {
			c.Decision = sqlite.DecisionDenied
			c.Error = reason
		}
		d.logger.Printf("creation %s for %s from %s: %s %s", req.ID, c.RPID, msg.Data.Origin, c.Decision, reason)
		resp = message.CredentialCreationResponse{Approved: approved}
	case message.CredentialGetRequest:
		c.Decision = sqlite.DecisionAnswered
		resp = message.CredentialGetResponse{}
	default:
		err := fmt.Errorf("unsupported request %s", req.Message.Type())
		c.Decision = sqlite.DecisionFailed
		c.Error = err.Error()
		c.AnsweredAt = time.Now()
		d.record(context.WithoutCancel(ctx), c)
		return nil, err
	}
	if ctx.Err() != nil {
		c.Decision = sqlite.DecisionAborted
	}
	c.AnsweredAt = time.Now()
	d.record(context.WithoutCancel(ctx), c)
	return resp, nil
}

func (d *daemon) record(ctx context.Context, c sqlite.Ceremony) {
	if err := d.store.Record(ctx, c); err != nil {
		d.logger.Printf("audit record %s/%s: %v", c.Origin, c.ID, err)
	}
	ev := auditEvent{Type: "ceremony", Ceremony: c}
	if d.repo != nil {
		hash, err := d.commitSnapshot(ctx)
		if err != nil {
			d.logger.Printf("audit snapshot: %v", err)
		}
		ev.Commit = hash
	}
	d.eventHub.publish(ev)
}
