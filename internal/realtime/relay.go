package realtime

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/proctorrelay/internal/models"
	"github.com/charlesng35/proctorrelay/pkg/logger"
	"github.com/charlesng35/proctorrelay/pkg/metrics"
)

// NoProctor is reported by ProctorID when the proctor slot is empty. It is never a real user id.
const NoProctor int64 = 0

// ErrInvalidUserType is returned when a user type other than member or proctor reaches the relay.
var ErrInvalidUserType = errors.New("realtime: user type cannot join a relay")

// Mailbox is a participant's outbound delivery channel. Only the owning session closes it.
type Mailbox chan OutboundMessage

// Participant is a registered connection inside a relay.
type Participant struct {
	UserID       int64
	ConnectionID string
	Mailbox      Mailbox
}

// Delivery reports what Route did with a message. It is never sent back to the sender.
type Delivery int

const (
	DeliveryDelivered Delivery = iota
	DeliveryNoProctor
	DeliveryUnknownRecipient
	DeliverySelfAddressed
	DeliveryMailboxUnavailable
	DeliveryRejected
)

func (d Delivery) String() string {
	switch d {
	case DeliveryDelivered:
		return "delivered"
	case DeliveryNoProctor:
		return "no_proctor"
	case DeliveryUnknownRecipient:
		return "unknown_recipient"
	case DeliverySelfAddressed:
		return "self_addressed"
	case DeliveryMailboxUnavailable:
		return "mailbox_unavailable"
	case DeliveryRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// RoomSnapshot is a point-in-time view of a relay roster.
type RoomSnapshot struct {
	RoomID     string  `json:"room_id"`
	ProctorID  int64   `json:"proctor_id"`
	HasProctor bool    `json:"has_proctor"`
	MemberIDs  []int64 `json:"member_ids"`
}

// Relay holds the roster for one room and routes messages between its participants.
// At most one proctor is registered at a time; members form an ordered list so that
// lookups by user id resolve to the earliest registration.
type Relay struct {
	roomID string
	log    *zap.Logger

	mu      sync.Mutex
	proctor *Participant
	members []*Participant
}

func newRelay(roomID string) *Relay {
	return &Relay{
		roomID: roomID,
		log:    logger.WithModule("realtime").With(zap.String("room", roomID)),
	}
}

// RoomID returns the room key this relay serves.
func (r *Relay) RoomID() string {
	return r.roomID
}

// Register adds a participant. A proctor replaces any existing proctor; the replaced
// participant's mailbox is left open and simply stops receiving deliveries.
func (r *Relay) Register(role models.UserType, userID int64, connectionID string, mailbox Mailbox) error {
	participant := &Participant{UserID: userID, ConnectionID: connectionID, Mailbox: mailbox}

	switch role {
	case models.UserTypeProctor:
		r.mu.Lock()
		previous := r.proctor
		r.proctor = participant
		r.mu.Unlock()

		if previous != nil {
			r.log.Info("proctor replaced",
				zap.Int64("previous_user_id", previous.UserID),
				zap.String("previous_connection_id", previous.ConnectionID),
				zap.Int64("user_id", userID),
				zap.String("connection_id", connectionID),
			)
		} else {
			r.log.Info("proctor registered", zap.Int64("user_id", userID), zap.String("connection_id", connectionID))
		}
		return nil
	case models.UserTypeMember:
		r.mu.Lock()
		r.members = append(r.members, participant)
		r.mu.Unlock()

		r.log.Info("member registered", zap.Int64("user_id", userID), zap.String("connection_id", connectionID))
		return nil
	default:
		return ErrInvalidUserType
	}
}

// Route delivers a message on behalf of sender. Members always reach the current proctor,
// whatever recipient they name. A proctor reaches the first member registered under
// recipientID and can never address itself.
func (r *Relay) Route(senderRole models.UserType, senderID, recipientID int64, event, message string) Delivery {
	envelope := newOutbound(senderID, event, message)

	r.mu.Lock()
	var target *Participant
	outcome := DeliveryDelivered

	switch senderRole {
	case models.UserTypeMember:
		if r.proctor == nil {
			outcome = DeliveryNoProctor
		} else {
			target = r.proctor
		}
	case models.UserTypeProctor:
		switch {
		case r.proctor != nil && recipientID == r.proctor.UserID:
			outcome = DeliverySelfAddressed
		default:
			target = r.findMemberLocked(recipientID)
			if target == nil {
				outcome = DeliveryUnknownRecipient
			}
		}
	default:
		outcome = DeliveryRejected
	}

	if target != nil && !offer(target.Mailbox, envelope) {
		outcome = DeliveryMailboxUnavailable
	}
	r.mu.Unlock()

	metrics.RelayDeliveries.WithLabelValues(outcome.String()).Inc()
	r.logDelivery(outcome, senderRole, senderID, recipientID, target)
	return outcome
}

// Unregister removes the participant owning connectionID. Unknown ids are ignored.
func (r *Relay) Unregister(connectionID string) bool {
	r.mu.Lock()
	var removed *Participant
	role := models.UserTypeMember

	if r.proctor != nil && r.proctor.ConnectionID == connectionID {
		removed = r.proctor
		role = models.UserTypeProctor
		r.proctor = nil
	} else {
		for i, member := range r.members {
			if member.ConnectionID != connectionID {
				continue
			}
			removed = member
			copy(r.members[i:], r.members[i+1:])
			r.members[len(r.members)-1] = nil
			r.members = r.members[:len(r.members)-1]
			break
		}
	}
	r.mu.Unlock()

	if removed == nil {
		r.log.Debug("unregister ignored: connection not registered", zap.String("connection_id", connectionID))
		return false
	}

	r.log.Info("participant unregistered",
		zap.String("role", role.String()),
		zap.Int64("user_id", removed.UserID),
		zap.String("connection_id", connectionID),
	)
	return true
}

// ProctorID returns the registered proctor's user id, or NoProctor.
func (r *Relay) ProctorID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proctor == nil {
		return NoProctor
	}
	return r.proctor.UserID
}

// Snapshot copies the current roster.
func (r *Relay) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := RoomSnapshot{
		RoomID:    r.roomID,
		ProctorID: NoProctor,
		MemberIDs: make([]int64, 0, len(r.members)),
	}
	if r.proctor != nil {
		snapshot.ProctorID = r.proctor.UserID
		snapshot.HasProctor = true
	}
	for _, member := range r.members {
		snapshot.MemberIDs = append(snapshot.MemberIDs, member.UserID)
	}
	return snapshot
}

func (r *Relay) findMemberLocked(userID int64) *Participant {
	for _, member := range r.members {
		if member.UserID == userID {
			return member
		}
	}
	return nil
}

func (r *Relay) logDelivery(outcome Delivery, senderRole models.UserType, senderID, recipientID int64, target *Participant) {
	fields := []zap.Field{
		zap.String("sender_role", senderRole.String()),
		zap.Int64("sender_id", senderID),
		zap.String("outcome", outcome.String()),
	}

	switch outcome {
	case DeliveryDelivered:
		r.log.Debug("message delivered", append(fields, zap.Int64("recipient_id", target.UserID))...)
	case DeliveryNoProctor:
		r.log.Warn("message dropped: no proctor connected", fields...)
	case DeliveryUnknownRecipient, DeliverySelfAddressed:
		r.log.Warn("message dropped: recipient not recognised", append(fields, zap.Int64("recipient_id", recipientID))...)
	case DeliveryMailboxUnavailable:
		r.log.Warn("message dropped: recipient mailbox unavailable",
			append(fields, zap.Int64("recipient_id", target.UserID), zap.String("connection_id", target.ConnectionID))...)
	case DeliveryRejected:
		r.log.Warn("message dropped: sender type cannot route", fields...)
	}
}

// offer pushes without blocking. A nil or full mailbox refuses the message.
func offer(mailbox Mailbox, msg OutboundMessage) bool {
	if mailbox == nil {
		return false
	}
	select {
	case mailbox <- msg:
		return true
	default:
		return false
	}
}
