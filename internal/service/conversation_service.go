package service

import (
	"context"
	"fmt"

	"baria-go/internal/model"
	"baria-go/internal/repository"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/log"
)

const defaultRedFlagLimit = 50

// PatientRecord is what an operator sees for one patient.
type PatientRecord struct {
	UserID   string              `json:"user_id"`
	State    model.SessionState  `json:"state"`
	History  []model.ChatMessage `json:"history"`
	RedFlags []model.RedFlagLog  `json:"red_flags"`
}

// ConversationService reads the per-patient conversation record.
type ConversationService interface {
	GetPatientRecord(ctx context.Context, userID string, redFlagLimit int) (*PatientRecord, error)
}

type conversationService struct {
	conversations repository.ConversationRepository
	redFlags      repository.RedFlagRepository
}

// NewConversationService builds the service. Either repository may be nil,
// in which case that part of the record stays empty.
func NewConversationService(conversations repository.ConversationRepository, redFlags repository.RedFlagRepository) ConversationService {
	return &conversationService{conversations: conversations, redFlags: redFlags}
}

func (s *conversationService) GetPatientRecord(ctx context.Context, userID string, redFlagLimit int) (*PatientRecord, error) {
	if userID == "" {
		return nil, apperrors.Invalidf("user_id is required")
	}
	if redFlagLimit <= 0 {
		redFlagLimit = defaultRedFlagLimit
	}
	rec := &PatientRecord{
		UserID:   userID,
		State:    model.SessionState{State: model.StateIdle},
		History:  []model.ChatMessage{},
		RedFlags: []model.RedFlagLog{},
	}

	if s.conversations != nil {
		state, err := s.conversations.GetState(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: conversation store: %v", apperrors.ErrDependencyUnavailable, err)
		}
		rec.State = state
		history, err := s.conversations.GetHistory(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: conversation store: %v", apperrors.ErrDependencyUnavailable, err)
		}
		if history != nil {
			rec.History = history
		}
	}

	if s.redFlags != nil {
		logs, err := s.redFlags.ListByUser(ctx, userID, redFlagLimit)
		if err != nil {
			log.Errorf("[ConversationService] red flag log for %s unavailable: %v", userID, err)
		} else if logs != nil {
			rec.RedFlags = logs
		}
	}
	return rec, nil
}
