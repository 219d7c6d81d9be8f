// Package dispatch turns matched chat commands into remote executions and
// answers the requester with the outcome.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/opsclaw/internal/aliases"
	"github.com/nextlevelbuilder/opsclaw/internal/bus"
	"github.com/nextlevelbuilder/opsclaw/internal/st2"
	"github.com/nextlevelbuilder/opsclaw/pkg/protocol"
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/opsclaw/internal/dispatch")

// ErrorColor marks failed-submission replies.
const ErrorColor = "#F35A00"

// Executor is the part of the automation API the dispatcher submits to.
type Executor interface {
	CreateAliasExecution(ctx context.Context, req st2.AliasExecutionRequest) (*st2.AliasExecutionResult, error)
	CreateExecution(ctx context.Context, req st2.ExecutionRequest) (*st2.Execution, error)
}

// ChatContext identifies who asked for a command and where to answer.
type ChatContext struct {
	Channel  string            `json:"channel"` // bus channel name, e.g. "slack"
	ChatID   string            `json:"chat_id"`
	UserID   string            `json:"user_id"`
	UserName string            `json:"user"`
	PeerKind string            `json:"peer_kind,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FromInbound builds a ChatContext for a bus message.
func FromInbound(msg bus.InboundMessage) ChatContext {
	name := msg.UserName
	if name == "" {
		name = msg.SenderID
	}
	return ChatContext{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		UserID:   msg.SenderID,
		UserName: name,
		PeerKind: msg.PeerKind,
		Metadata: msg.Metadata,
	}
}

// Options configures a Dispatcher.
type Options struct {
	Route           string // notification route tag
	WebUIURL        string // base for "details available at" links; empty disables them
	TwoFactorAction string // action run to request confirmation; empty disables gating
	// QualifyChannels prefixes source_channel with the platform name
	// ("slack:C123") so notifications can be routed back with several
	// platforms connected.
	QualifyChannels bool
	MaxConcurrent   int
}

// Dispatcher builds execution requests from matches, gates them behind
// two-factor confirmation when required, submits them and replies.
type Dispatcher struct {
	exec    Executor
	router  bus.MessageRouter
	gate    *Gate
	phrases PhrasePicker
	opts    Options
	group   errgroup.Group
	resumes sync.WaitGroup // confirmed executions in flight
}

// New creates a dispatcher. gate may be nil when two-factor is disabled.
func New(exec Executor, router bus.MessageRouter, gate *Gate, phrases PhrasePicker, opts Options) *Dispatcher {
	if phrases == nil {
		phrases = RandomPhrases{}
	}
	if opts.Route == "" {
		opts.Route = protocol.DefaultNotificationRoute
	}
	opts.WebUIURL = strings.TrimRight(opts.WebUIURL, "/")

	d := &Dispatcher{exec: exec, router: router, gate: gate, phrases: phrases, opts: opts}
	if opts.MaxConcurrent > 0 {
		d.group.SetLimit(opts.MaxConcurrent)
	}
	if gate != nil {
		gate.OnExpire(d.expired)
	}
	return d
}

// Go runs Dispatch in the background, blocking while MaxConcurrent
// dispatches are already in flight.
func (d *Dispatcher) Go(ctx context.Context, m *aliases.Match, cc ChatContext) {
	d.group.Go(func() error {
		if err := d.Dispatch(ctx, m, cc); err != nil {
			slog.Warn("dispatch failed", "alias", m.Alias.Name, "channel", cc.Channel, "error", err)
		}
		return nil
	})
}

// Wait blocks until background dispatches and confirmed executions finish.
func (d *Dispatcher) Wait() {
	_ = d.group.Wait()
	d.resumes.Wait()
}

// Dispatch handles one matched command. The returned error has already been
// reported to the requester; callers only log it.
func (d *Dispatcher) Dispatch(ctx context.Context, m *aliases.Match, cc ChatContext) error {
	req := d.buildRequest(m, cc)

	if d.gated(m.Alias) {
		return d.requestConfirmation(ctx, m.Alias, req, cc)
	}
	return d.Submit(ctx, m.Alias, req, cc)
}

func (d *Dispatcher) gated(alias *aliases.Definition) bool {
	return d.gate != nil && d.opts.TwoFactorAction != "" && alias.RequiresTwoFactor()
}

func (d *Dispatcher) buildRequest(m *aliases.Match, cc ChatContext) st2.AliasExecutionRequest {
	source, err := json.Marshal(cc)
	if err != nil {
		source = nil
	}
	return st2.AliasExecutionRequest{
		Name:              m.Alias.Name,
		Format:            m.Format,
		Command:           m.Command,
		User:              cc.UserName,
		SourceChannel:     d.sourceChannel(cc),
		SourceContext:     source,
		NotificationRoute: d.opts.Route,
	}
}

func (d *Dispatcher) sourceChannel(cc ChatContext) string {
	if d.opts.QualifyChannels && cc.Channel != "" {
		return cc.Channel + ":" + cc.ChatID
	}
	return cc.ChatID
}

func (d *Dispatcher) requestConfirmation(ctx context.Context, alias *aliases.Definition, req st2.AliasExecutionRequest, cc ChatContext) error {
	ctx, span := tracer.Start(ctx, "dispatch.twofactor")
	defer span.End()
	span.SetAttributes(attribute.String("alias", alias.Name))

	p := &Pending{Token: uuid.NewString(), Alias: alias, Request: req, Chat: cc}
	if err := d.gate.Open(p); err != nil {
		span.SetStatus(codes.Error, err.Error())
		d.replyError(cc, err.Error(), "")
		return err
	}
	slog.Debug("command requires two-factor auth", "alias", alias.Name, "token", p.Token)
	d.reply(cc, TwoFactorMessage, protocol.StatusSuccess)

	_, err := d.exec.CreateExecution(ctx, st2.ExecutionRequest{
		Action: d.opts.TwoFactorAction,
		Parameters: map[string]any{
			"uuid":    p.Token,
			"user":    cc.UserName,
			"channel": req.SourceChannel,
			"hint":    alias.Description,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirmation request failed")
		if _, ok := d.gate.Take(p.Token); ok {
			d.replyError(cc, errorMessage(err), requestID(err))
		}
		return fmt.Errorf("request two-factor confirmation: %w", err)
	}
	return nil
}

// Confirm resumes the execution pending under token in the background and
// returns without waiting for the submission. Unknown and duplicate tokens
// are ignored and report false.
func (d *Dispatcher) Confirm(ctx context.Context, token string) bool {
	if d.gate == nil {
		return false
	}
	p, ok := d.gate.Take(token)
	if !ok {
		slog.Debug("ignoring confirmation for unknown token", "token", token)
		return false
	}
	slog.Info("two-factor confirmed", "alias", p.Request.Name, "token", token)
	d.resumes.Go(func() {
		if err := d.Submit(ctx, p.Alias, p.Request, p.Chat); err != nil {
			slog.Warn("confirmed execution failed", "alias", p.Request.Name, "error", err)
		}
	})
	return true
}

// Submit sends req to the executor and posts the acknowledgment or error.
func (d *Dispatcher) Submit(ctx context.Context, alias *aliases.Definition, req st2.AliasExecutionRequest, cc ChatContext) error {
	ctx, span := tracer.Start(ctx, "dispatch.submit")
	defer span.End()
	span.SetAttributes(attribute.String("alias", req.Name), attribute.String("channel", cc.Channel))

	slog.Debug("sending alias execution", "alias", req.Name, "command", req.Command, "user", req.User)
	res, err := d.exec.CreateAliasExecution(ctx, req)
	if err != nil {
		if id, ok := st2.AcceptedID(err); ok {
			d.sendAck(cc, alias, &st2.AliasExecutionResult{Execution: &st2.Execution{ID: id}})
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "alias execution failed")
		slog.Error("failed to create an alias execution", "alias", req.Name, "error", err)
		d.replyError(cc, errorMessage(err), requestID(err))
		return err
	}

	span.SetAttributes(attribute.String("execution.id", res.ExecutionID()))
	d.sendAck(cc, alias, res)
	return nil
}

func (d *Dispatcher) sendAck(cc ChatContext, alias *aliases.Definition, res *st2.AliasExecutionResult) {
	ack := res.Ack()
	if ack == nil && alias != nil {
		ack = alias.Ack
	}

	history := d.historySuffix(res.ExecutionID())
	if ack != nil {
		if ack.Enabled != nil && !*ack.Enabled {
			return
		}
		if ack.AppendURL != nil && !*ack.AppendURL {
			history = ""
		}
	}

	if res.Message != "" {
		d.reply(cc, res.Message+history, protocol.StatusSuccess)
		return
	}
	d.reply(cc, fmt.Sprintf(d.phrases.Start(), res.ExecutionID())+history, protocol.StatusSuccess)
}

func (d *Dispatcher) historySuffix(id string) string {
	if d.opts.WebUIURL == "" || id == "" {
		return ""
	}
	return fmt.Sprintf(" (details available at %s/#/history/%s/general)", d.opts.WebUIURL, id)
}

func (d *Dispatcher) expired(p *Pending) {
	d.reply(p.Chat, fmt.Sprintf(TwoFactorTimeoutMessage, p.Request.Command), protocol.StatusFailure)
}

func (d *Dispatcher) replyError(cc ChatContext, message, reqID string) {
	text := fmt.Sprintf(d.phrases.Error(), message)
	if reqID != "" {
		text += fmt.Sprintf(" ; Use request ID %s to grep st2 api logs.", reqID)
	}
	d.publish(cc, text, map[string]string{
		protocol.MetaStatus: protocol.StatusFailure,
		protocol.MetaColor:  ErrorColor,
	})
}

func (d *Dispatcher) reply(cc ChatContext, text, status string) {
	d.publish(cc, text, map[string]string{protocol.MetaStatus: status})
}

func (d *Dispatcher) publish(cc ChatContext, text string, meta map[string]string) {
	meta[protocol.MetaUser] = cc.UserName
	d.router.PublishOutbound(bus.OutboundMessage{
		Channel:  cc.Channel,
		ChatID:   cc.ChatID,
		Content:  text,
		Metadata: meta,
	})
}

func errorMessage(err error) string {
	var apiErr *st2.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func requestID(err error) string {
	var apiErr *st2.APIError
	if errors.As(err, &apiErr) {
		return apiErr.RequestID
	}
	return ""
}
