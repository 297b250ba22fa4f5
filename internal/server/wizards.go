package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	advancedomain "github.com/smallbiznis/boqledger/internal/advancepayment/domain"
	margindomain "github.com/smallbiznis/boqledger/internal/margin/domain"
	subcontractdomain "github.com/smallbiznis/boqledger/internal/subcontract/domain"
)

func (s *Server) bindAdvanceRequest(c *gin.Context) (advancedomain.Request, bool) {
	var req advancedomain.Request
	boqID, ok := pathID(c, "id")
	if !ok {
		return req, false
	}
	if !bindOptionalJSON(c, &req) {
		return req, false
	}
	req.BoqID = boqID
	return req, true
}

func (s *Server) PreviewAdvancePayment(c *gin.Context) {
	req, ok := s.bindAdvanceRequest(c)
	if !ok {
		return
	}

	resp, err := s.advanceSvc.Preview(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ConfirmAdvancePayment(c *gin.Context) {
	req, ok := s.bindAdvanceRequest(c)
	if !ok {
		return
	}

	resp, err := s.advanceSvc.Confirm(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ApplyMargin(c *gin.Context) {
	boqID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req margindomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.BoqID = boqID

	resp, err := s.marginSvc.Apply(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) bindSubcontractRequest(c *gin.Context) (subcontractdomain.Request, bool) {
	var req subcontractdomain.Request
	boqID, ok := pathID(c, "id")
	if !ok {
		return req, false
	}
	if !bindOptionalJSON(c, &req) {
		return req, false
	}
	req.BoqID = boqID
	req.ProjectName = strings.TrimSpace(req.ProjectName)
	return req, true
}

func (s *Server) PreviewSubcontract(c *gin.Context) {
	req, ok := s.bindSubcontractRequest(c)
	if !ok {
		return
	}

	resp, err := s.subcontractSvc.Preview(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateSubcontractOrder(c *gin.Context) {
	req, ok := s.bindSubcontractRequest(c)
	if !ok {
		return
	}

	resp, err := s.subcontractSvc.CreatePurchaseOrder(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}
