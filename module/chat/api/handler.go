package api

import (
	"errors"
	"net/http"
	"strconv"

	midsec "github.com/threadswap/chat-service/middleware/security"
	"github.com/threadswap/chat-service/module/chat/service"
	"github.com/threadswap/chat-service/tools/errs"

	"github.com/gin-gonic/gin"
)

// Handler exposes the messaging operations over HTTP. The caller identity
// always comes from the validated token, never from the request body.
type Handler struct {
	Svc *service.ChatService
}

type createConversationReq struct {
	RecipientID string `json:"recipient_id" binding:"required"`
	Text        string `json:"text"`
}

// CreateConversation resolves (or creates) the conversation with the
// recipient, optionally appending a first message. A failed first send
// still leaves the created conversation in place and visible.
func (h *Handler) CreateConversation(c *gin.Context) {
	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.ErrInvalidArgument.WithDetail("malformed request body").Wrap())
		return
	}
	caller := midsec.CallerID(c)

	conv, err := h.Svc.GetOrCreate(c.Request.Context(), caller, req.RecipientID)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.Text != "" {
		if _, err := h.Svc.Send(c.Request.Context(), conv.ID, caller, req.Text); err != nil {
			writeError(c, err)
			return
		}
		// return the summary the client will render
		conv, err = h.Svc.GetOrCreate(c.Request.Context(), caller, req.RecipientID)
		if err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) ListConversations(c *gin.Context) {
	out, err := h.Svc.ListConversations(c.Request.Context(), midsec.CallerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	if err := h.Svc.Delete(c.Request.Context(), c.Param("id"), midsec.CallerID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListMessages(c *gin.Context) {
	pageSize := 0
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, errs.ErrInvalidArgument.WithDetailf("bad page_size %q", raw).Wrap())
			return
		}
		pageSize = n
	}

	page, err := h.Svc.List(c.Request.Context(), c.Param("id"), midsec.CallerID(c), c.Query("cursor"), pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type sendMessageReq struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.ErrInvalidArgument.WithDetail("malformed request body").Wrap())
		return
	}
	m, err := h.Svc.Send(c.Request.Context(), c.Param("id"), midsec.CallerID(c), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	if err := h.Svc.MarkAllRead(c.Request.Context(), c.Param("id"), midsec.CallerID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError maps the taxonomy onto HTTP statuses. The CodeError itself is
// the response body, so clients branch on the stable code, not the status.
func writeError(c *gin.Context, err error) {
	var ce *errs.CodeError
	if !errors.As(err, &ce) {
		ce = errs.ErrInternal
	}
	c.JSON(httpStatus(ce.Code), ce)
}

func httpStatus(code int) int {
	switch code {
	case errs.CodeInvalidArgument:
		return http.StatusBadRequest
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeForbidden:
		return http.StatusForbidden
	case errs.CodeConflict:
		return http.StatusConflict
	case errs.CodeTransient:
		return http.StatusServiceUnavailable
	case errs.CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
