package usecase

import (
	"github.com/secmon-lab/bulkdm/pkg/domain/interfaces"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	slacksvc "github.com/secmon-lab/bulkdm/pkg/service/slack"
)

type UseCases struct {
	Roster   *RosterUseCase
	Dispatch *DispatchUseCase

	rosterOpts   []RosterOption
	dispatchOpts []DispatchOption
}

type Option func(*UseCases)

func WithRosterOptions(opts ...RosterOption) Option {
	return func(uc *UseCases) {
		uc.rosterOpts = append(uc.rosterOpts, opts...)
	}
}

func WithDispatchOptions(opts ...DispatchOption) Option {
	return func(uc *UseCases) {
		uc.dispatchOpts = append(uc.dispatchOpts, opts...)
	}
}

// WithConfig applies the app config shared by both use cases
func WithConfig(cfg *model.AppConfig) Option {
	return func(uc *UseCases) {
		uc.rosterOpts = append(uc.rosterOpts, WithCohortFilter(model.NewCohortFilter(cfg)))
	}
}

// WithEvents sets the event log of both use cases
func WithEvents(events interfaces.EventLog) Option {
	return func(uc *UseCases) {
		uc.rosterOpts = append(uc.rosterOpts, WithEventLog(events))
		uc.dispatchOpts = append(uc.dispatchOpts, WithSendEventLog(events))
	}
}

func New(store interfaces.RosterStore, slackService slacksvc.Service, opts ...Option) *UseCases {
	uc := &UseCases{}
	for _, opt := range opts {
		opt(uc)
	}

	uc.Roster = NewRosterUseCase(store, slackService, uc.rosterOpts...)
	uc.Dispatch = NewDispatchUseCase(uc.Roster, slackService, uc.dispatchOpts...)

	return uc
}
