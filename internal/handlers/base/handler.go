package base

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/bot"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	service bot.Service
	logger  *log.Entry
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(service bot.Service, handlerName string) *BaseHandler {
	return &BaseHandler{
		service: service,
		logger:  log.WithField("handler", handlerName),
	}
}

// GetService returns the bot service
func (h *BaseHandler) GetService() bot.Service {
	return h.service
}

// GetLogger returns the handler's logger
func (h *BaseHandler) GetLogger() *log.Entry {
	return h.logger
}

// ValidateEvent performs common event validation
func (h *BaseHandler) ValidateEvent(ev *bot.Event) error {
	if ev == nil || ev.Payload == nil {
		return ErrNilEvent
	}
	if ev.GuildID == "" {
		return ErrNoGuild
	}
	return nil
}

var (
	ErrNilEvent = errors.New("nil event")
	ErrNoGuild  = errors.New("event without guild")
)
