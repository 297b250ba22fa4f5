package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	certificatedomain "github.com/smallbiznis/boqledger/internal/certificate/domain"
)

func (s *Server) CreateCertificate(c *gin.Context) {
	var req certificatedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	resp, err := s.certificateSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// CreateCertificateFromProgress drafts a certificate with one line per
// sub-activity of the BOQ.
func (s *Server) CreateCertificateFromProgress(c *gin.Context) {
	boqID, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.certificateSvc.CreateFromProgress(c.Request.Context(), boqID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListCertificates(c *gin.Context) {
	var req certificatedomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.certificateSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Certificates, "page_info": resp.PageInfo})
}

func (s *Server) GetCertificate(c *gin.Context) {
	s.certificateAction(c, s.certificateSvc.Get)
}

func (s *Server) ViewCertificateInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.certificateSvc.ViewInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RenderCertificatePDF(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	body, err := s.certificateSvc.RenderPDF(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", "certificate-"+id.String()+".pdf"))
	c.Data(http.StatusOK, "application/pdf", body)
}

func (s *Server) AddCertificateLine(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req certificatedomain.LineInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.certificateSvc.AddLine(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateCertificateLine(c *gin.Context) {
	lineID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req certificatedomain.LineUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.certificateSvc.UpdateLine(c.Request.Context(), lineID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveCertificateLine(c *gin.Context) {
	s.certificateAction(c, s.certificateSvc.RemoveLine)
}

func (s *Server) SetCertificateApprovedAmount(c *gin.Context) {
	s.certificateAction(c, s.certificateSvc.SetApprovedAmount)
}

func (s *Server) SubmitCertificate(c *gin.Context) {
	s.certificateAction(c, s.certificateSvc.Submit)
}

func (s *Server) ApproveCertificate(c *gin.Context) {
	s.certificateAction(c, s.certificateSvc.Approve)
}

func (s *Server) InvoiceCertificate(c *gin.Context) {
	s.certificateAction(c, s.certificateSvc.MarkInvoiced)
}

func (s *Server) MarkCertificatePaid(c *gin.Context) {
	s.certificateAction(c, s.certificateSvc.MarkPaid)
}

func (s *Server) certificateAction(c *gin.Context, fn func(context.Context, snowflake.ID) (*certificatedomain.Certificate, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := fn(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
