package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/afya-transport/internal/api/dto"
	"github.com/gocomet/afya-transport/internal/domain/wallet"
	walletsvc "github.com/gocomet/afya-transport/internal/service/wallet"
	"github.com/gocomet/afya-transport/pkg/logger"
)

// GetWallet handles GET /v1/users/:id/wallet
func (h *Handlers) GetWallet(c *gin.Context) {
	acc, err := h.Wallet.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// OpenWallet handles POST /v1/users/:id/wallet
func (h *Handlers) OpenWallet(c *gin.Context) {
	acc, err := h.Wallet.OpenAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// RecordTransaction handles POST /v1/transactions. Transactions that need a
// payment processor are answered 202 while still pending.
func (h *Handlers) RecordTransaction(c *gin.Context) {
	var req dto.RecordTransactionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.Logger.Info("Transaction received",
		logger.String("user_id", req.UserID),
		logger.String("type", req.Type),
		logger.String("payment_method", req.PaymentMethod),
	)

	t, err := h.Wallet.RecordTransaction(c.Request.Context(), walletsvc.RecordInput{
		UserID:      req.UserID,
		Type:        wallet.TransactionType(req.Type),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      wallet.Method(req.PaymentMethod),
		Source:      req.PaymentSource,
		Description: req.Description,
		RequestID:   req.RequestID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(transactionStatus(t), t)
}

// GetTransaction handles GET /v1/transactions/:id
func (h *Handlers) GetTransaction(c *gin.Context) {
	t, err := h.Wallet.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ListTransactions handles GET /v1/users/:id/transactions
func (h *Handlers) ListTransactions(c *gin.Context) {
	txs, err := h.Wallet.ListTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

// ApplyForLoan handles POST /v1/loans
func (h *Handlers) ApplyForLoan(c *gin.Context) {
	var req dto.ApplyLoanRequest
	if !h.bindJSON(c, &req) {
		return
	}
	loan, err := h.Wallet.ApplyForLoan(c.Request.Context(), walletsvc.LoanApplication{
		UserID:       req.UserID,
		LoanType:     req.LoanType,
		Amount:       req.Amount,
		Purpose:      req.Purpose,
		InterestRate: req.InterestRate,
		TermMonths:   req.TermMonths,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

// GetLoan handles GET /v1/loans/:id
func (h *Handlers) GetLoan(c *gin.Context) {
	loan, err := h.Wallet.GetLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// ListLoans handles GET /v1/users/:id/loans
func (h *Handlers) ListLoans(c *gin.Context) {
	loans, err := h.Wallet.ListLoans(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loans": loans, "count": len(loans)})
}

// ApproveLoan handles POST /v1/loans/:id/approve
func (h *Handlers) ApproveLoan(c *gin.Context) {
	loan, err := h.Wallet.ApproveLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// RejectLoan handles POST /v1/loans/:id/reject
func (h *Handlers) RejectLoan(c *gin.Context) {
	loan, err := h.Wallet.RejectLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// DisburseLoan handles POST /v1/loans/:id/disburse
func (h *Handlers) DisburseLoan(c *gin.Context) {
	loan, t, err := h.Wallet.DisburseLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DisbursementResponse{Loan: loan, Transaction: t})
}

// MakeLoanPayment handles POST /v1/loans/:id/payments
func (h *Handlers) MakeLoanPayment(c *gin.Context) {
	var req dto.LoanPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	t, err := h.Wallet.MakeLoanPayment(c.Request.Context(), c.Param("id"), req.Amount, wallet.Method(req.PaymentMethod), req.PaymentSource)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(transactionStatus(t), t)
}

func transactionStatus(t *wallet.Transaction) int {
	if t.Status == wallet.TxPending {
		return http.StatusAccepted
	}
	return http.StatusCreated
}
