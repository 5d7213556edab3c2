package dto

import (
	"github.com/gocomet/afya-transport/internal/domain/geo"
	"github.com/gocomet/afya-transport/internal/domain/transport"
	"github.com/gocomet/afya-transport/internal/domain/wallet"
	"github.com/shopspring/decimal"
)

// CreateTransportRequest represents a request for patient transport
type CreateTransportRequest struct {
	RequesterID       string                `json:"requester_id" binding:"required"`
	RequesterRole     string                `json:"requester_role" binding:"omitempty,oneof=caregiver chv health_worker"`
	Patient           transport.Patient     `json:"patient"`
	Pickup            transport.Pickup      `json:"pickup"`
	Destination       transport.Destination `json:"destination"`
	ServiceType       string                `json:"service_type" binding:"omitempty,oneof=anc vaccination emergency consultation routine"`
	Urgency           string                `json:"urgency" binding:"omitempty,oneof=normal semi_urgent emergency"`
	Notes             string                `json:"notes"`
	PaymentMethod     string                `json:"payment_method" binding:"omitempty,oneof=wallet sha_loan cash insurance"`
	EstimatedDistance float64               `json:"estimated_distance_km" binding:"gte=0"`
}

// RiderActionRequest identifies the rider accepting or rejecting a request
type RiderActionRequest struct {
	RiderID string `json:"rider_id" binding:"required"`
}

// CompleteRideRequest carries the optional final fare
type CompleteRideRequest struct {
	ActualCost *float64 `json:"actual_cost"`
}

// CancelRequest carries the optional cancellation reason
type CancelRequest struct {
	Reason string `json:"reason"`
}

// RateRideRequest represents the requester's rating of a ride
type RateRideRequest struct {
	Rating float64 `json:"rating" binding:"required,min=1,max=5"`
}

// RegisterRiderRequest represents a rider joining the fleet
type RegisterRiderRequest struct {
	ID       string    `json:"rider_id"`
	Name     string    `json:"name" binding:"required"`
	Phone    string    `json:"phone" binding:"required"`
	Location geo.Point `json:"location"`
}

// UpdateLocationRequest represents a rider location update
type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// SetOnlineRequest toggles rider presence
type SetOnlineRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// RecordTransactionRequest represents a wallet transaction
type RecordTransactionRequest struct {
	UserID        string          `json:"user_id" binding:"required"`
	Type          string          `json:"type" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	PaymentSource string          `json:"payment_source"`
	Description   string          `json:"description"`
	RequestID     string          `json:"request_id"`
}

// ApplyLoanRequest represents a loan application
type ApplyLoanRequest struct {
	UserID       string          `json:"user_id" binding:"required"`
	LoanType     string          `json:"loan_type"`
	Amount       decimal.Decimal `json:"amount"`
	Purpose      string          `json:"purpose"`
	InterestRate float64         `json:"interest_rate" binding:"gte=0"`
	TermMonths   int             `json:"term_months" binding:"required,gt=0"`
}

// LoanPaymentRequest represents a repayment
type LoanPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" binding:"required"`
	PaymentSource string          `json:"payment_source"`
}

// DisbursementResponse is returned when a loan is paid out
type DisbursementResponse struct {
	Loan        *wallet.Loan        `json:"loan"`
	Transaction *wallet.Transaction `json:"transaction"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse wraps an acknowledgement
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
