package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charlesng35/proctorrelay/internal/models"
	"github.com/charlesng35/proctorrelay/pkg/validator"
)

// InboundMessage is the frame a client sends to the relay.
// Participant names the recipient and is only read when the sender is a proctor.
type InboundMessage struct {
	Event       *string `json:"event" validate:"required"`
	Message     *string `json:"message" validate:"required"`
	Participant *int64  `json:"participant,omitempty"`
}

// OutboundMessage is the frame delivered to a recipient's mailbox and written verbatim.
type OutboundMessage struct {
	Event    string `json:"event"`
	Message  string `json:"message"`
	SenderID string `json:"sender_id"`
}

var (
	errMalformedFrame     = errors.New("realtime: malformed frame")
	errMissingParticipant = errors.New("realtime: participant is required for proctor frames")
)

// decodeInbound parses and validates a text frame for a sender of the given type.
func decodeInbound(payload []byte, sender models.UserType) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return InboundMessage{}, errMalformedFrame
	}
	if err := validator.ValidateStruct(msg); err != nil {
		var failures validator.ValidationErrors
		if errors.As(err, &failures) {
			return InboundMessage{}, fmt.Errorf("%w: missing %s", errMalformedFrame, strings.Join(failures.Fields(), ", "))
		}
		return InboundMessage{}, errMalformedFrame
	}

	switch sender {
	case models.UserTypeProctor:
		if msg.Participant == nil {
			return InboundMessage{}, errMissingParticipant
		}
	case models.UserTypeMember:
	default:
		return InboundMessage{}, ErrInvalidUserType
	}
	return msg, nil
}

func newOutbound(senderID int64, event, message string) OutboundMessage {
	return OutboundMessage{
		Event:    event,
		Message:  message,
		SenderID: strconv.FormatInt(senderID, 10),
	}
}
