// Package background answers the popup's persistence and styling requests.
// Replies travel back over the inbound bus like every other message.
package background

import (
	"context"
	"fmt"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tryxpath-cli/internal/bus"
	"github.com/xkilldash9x/tryxpath-cli/internal/protocol"
	"github.com/xkilldash9x/tryxpath-cli/internal/store"
)

// Poster accepts inbound envelopes.
type Poster interface {
	Post(ctx context.Context, env protocol.Envelope) error
}

var _ Poster = (*bus.Bus)(nil)

// Service is the background collaborator of one popup.
type Service struct {
	store  store.Store
	css    string
	out    Poster
	logger *zap.Logger
}

// New creates a service replying through out.
func New(st store.Store, css string, out Poster, logger *zap.Logger) *Service {
	return &Service{store: st, css: css, out: out, logger: logger.Named("background")}
}

type restoreReply struct {
	Event string                 `json:"event"`
	State *protocol.SessionState `json:"state"`
}

type styleReply struct {
	Event string `json:"event"`
	CSS   string `json:"css"`
}

// RequestRestoreState takes the stored snapshot and replies with it. A
// snapshot that cannot be read is logged and answered with null so the popup
// still starts.
func (s *Service) RequestRestoreState(ctx context.Context) error {
	state, err := s.store.Take(ctx)
	if err != nil {
		s.logger.Warn("Could not load popup state, restoring defaults.", zap.Error(err))
		state = nil
	}
	return s.reply(ctx, restoreReply{Event: protocol.EventRestorePopupState, State: state})
}

// RequestInsertStyle replies with the popup stylesheet.
func (s *Service) RequestInsertStyle(ctx context.Context) error {
	return s.reply(ctx, styleReply{Event: protocol.EventInsertStyleToPopup, CSS: s.css})
}

// StoreState persists the snapshot for the next popup.
func (s *Service) StoreState(ctx context.Context, state protocol.SessionState) error {
	if err := s.store.Save(ctx, state); err != nil {
		return err
	}
	s.logger.Debug("Popup state persisted.")
	return nil
}

func (s *Service) reply(ctx context.Context, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding background reply: %w", err)
	}
	if err := s.out.Post(ctx, protocol.NewEnvelope(protocol.Sender{}, raw)); err != nil {
		return fmt.Errorf("posting background reply: %w", err)
	}
	return nil
}
