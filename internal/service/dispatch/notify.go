package dispatch

import (
	"github.com/gocomet/afya-transport/internal/domain/transport"
	"github.com/gocomet/afya-transport/pkg/websocket"
)

// Message types pushed over the websocket
const (
	MsgEmergencyAssignment = "emergency_assignment"
	MsgRequestStatus       = "request_status"
	MsgNewRequest          = "new_request"
)

// StatusUpdate is the payload of a request_status message
type StatusUpdate struct {
	RequestID  string           `json:"request_id"`
	Status     transport.Status `json:"status"`
	RiderID    string           `json:"rider_id,omitempty"`
	RiderName  string           `json:"rider_name,omitempty"`
	RiderPhone string           `json:"rider_phone,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

func statusUpdate(req *transport.Request) StatusUpdate {
	return StatusUpdate{
		RequestID:  req.ID,
		Status:     req.Status,
		RiderID:    req.RiderID,
		RiderName:  req.RiderName,
		RiderPhone: req.RiderPhone,
		Reason:     req.CancellationReason,
	}
}

// notifyStatus tells the requester, the assigned rider and any followers
// that the request changed.
func (e *Engine) notifyStatus(req *transport.Request) {
	if e.notifier == nil {
		return
	}
	msg := websocket.Message{Type: MsgRequestStatus, Data: statusUpdate(req)}
	e.notifier.SendToUser(req.RequesterID, msg)
	if req.RiderID != "" {
		e.notifier.SendToUser(req.RiderID, msg)
	}
	e.notifier.BroadcastToRequest(req.ID, msg)
}

// offerEmergency pushes an auto-assigned emergency to its rider
func (e *Engine) offerEmergency(req *transport.Request) {
	if e.notifier == nil {
		return
	}
	e.notifier.SendToUser(req.RiderID, websocket.Message{Type: MsgEmergencyAssignment, Data: req})
}

// announce tells browsing riders about a request left open for pickup
func (e *Engine) announce(req *transport.Request) {
	if e.notifier == nil || req.Status != transport.StatusPending {
		return
	}
	e.notifier.BroadcastToAudience(websocket.AudienceRider, websocket.Message{Type: MsgNewRequest, Data: req})
}
