package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mybank/idalloc"
	"github.com/mybank/idalloc/ledger"
)

func (s *Server) transactionID(c *gin.Context) (idalloc.ID, bool) {
	id, err := idalloc.ParseString(c.Param("id"))
	if err != nil {
		Fail(c, http.StatusBadRequest, "transaction id must be a decimal integer")
		return 0, false
	}
	return id, true
}

func (s *Server) bindRequest(c *gin.Context) (ledger.Request, bool) {
	var req ledger.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "malformed request body: "+err.Error())
		return req, false
	}
	return req, true
}

func (s *Server) handleCreateTransaction(c *gin.Context) {
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}
	txn, err := s.ledger.Create(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "create transaction success", txn)
}

func (s *Server) handleUpdateTransaction(c *gin.Context) {
	id, ok := s.transactionID(c)
	if !ok {
		return
	}
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}
	txn, err := s.ledger.Update(c.Request.Context(), id, req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	OK(c, "update transaction success", txn)
}

func (s *Server) handleDeleteTransaction(c *gin.Context) {
	id, ok := s.transactionID(c)
	if !ok {
		return
	}
	if err := s.ledger.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	OK[any](c, "delete transaction success", nil)
}

func (s *Server) handleGetTransaction(c *gin.Context) {
	id, ok := s.transactionID(c)
	if !ok {
		return
	}
	txn, err := s.ledger.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	OK(c, "ok", txn)
}

func (s *Server) handleListTransactions(c *gin.Context) {
	var req ledger.PageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		Fail(c, http.StatusBadRequest, "page and size must be integers")
		return
	}
	page, err := s.ledger.List(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	OK(c, "ok", page)
}
