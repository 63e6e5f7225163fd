package services

import (
	"errors"
	"fmt"

	"github.com/edudati/openheal-research/notices"
	"github.com/edudati/openheal-research/openheal"
)

type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-facing message about a sync attempt.
type Notice struct {
	Level         NoticeLevel `json:"level"`
	Message       string      `json:"message"`
	ParticipantID string      `json:"participant_id,omitempty"`
	StudyID       string      `json:"study_id,omitempty"`
}

// Notifier pushes messages to live clients; *notices.Hub implements it.
type Notifier interface {
	BroadcastToRoom(roomID string, message interface{})
}

func createdNotice(participantID, studyID string, n int) Notice {
	return Notice{
		Level:         NoticeSuccess,
		Message:       fmt.Sprintf("Matches created: %d", n),
		ParticipantID: participantID,
		StudyID:       studyID,
	}
}

func syncErrorNotice(participantID, studyID string, err error) Notice {
	msg := "Failed to sync matches from OpenHeal"
	switch {
	case errors.Is(err, openheal.ErrExternalSourceUnavailable):
		msg += ": OpenHeal is unavailable"
	case errors.Is(err, openheal.ErrMalformedIdentity):
		msg += ": participant id is not an OpenHeal user id"
	}
	return Notice{
		Level:         NoticeError,
		Message:       msg,
		ParticipantID: participantID,
		StudyID:       studyID,
	}
}

func broadcastNotice(n Notifier, notice Notice) {
	if n == nil || notice.StudyID == "" {
		return
	}
	room := notices.StudyRoom(notice.StudyID)
	n.BroadcastToRoom(room, notices.Message{
		Type:    notices.TypeSyncNotice,
		Payload: notice,
		RoomID:  room,
	})
}
