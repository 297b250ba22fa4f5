package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
)

func (s *Server) GetOrder(c *gin.Context) {
	orgID, id, ok := s.scopedID(c)
	if !ok {
		return
	}

	resp, err := s.orders.GetOrder(c.Request.Context(), orgID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ConfirmOrder confirms a sale order. An order quoted from a BOQ also
// provisions the BOQ's project and analytic account.
func (s *Server) ConfirmOrder(c *gin.Context) {
	orgID, id, ok := s.scopedID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	boq, err := s.boqSvc.HandleOrderConfirmed(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	order, err := s.orders.GetOrder(ctx, orgID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"order": order, "boq": boq}})
}

func (s *Server) GetInvoice(c *gin.Context) {
	s.invoiceAction(c, s.invoices.GetInvoice)
}

func (s *Server) PostInvoice(c *gin.Context) {
	s.invoiceAction(c, s.invoices.PostInvoice)
}

func (s *Server) PayInvoice(c *gin.Context) {
	s.invoiceAction(c, s.invoices.MarkInvoicePaid)
}

func (s *Server) invoiceAction(c *gin.Context, fn func(context.Context, snowflake.ID, snowflake.ID) (*integrationdomain.Invoice, error)) {
	orgID, id, ok := s.scopedID(c)
	if !ok {
		return
	}

	resp, err := fn(c.Request.Context(), orgID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPurchaseOrder(c *gin.Context) {
	orgID, id, ok := s.scopedID(c)
	if !ok {
		return
	}

	resp, err := s.purchases.GetPurchaseOrder(c.Request.Context(), orgID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ConfirmPurchaseOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	po, boq, err := s.subcontractSvc.ConfirmPurchaseOrder(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"purchase_order": po, "boq": boq}})
}

func (s *Server) scopedID(c *gin.Context) (snowflake.ID, snowflake.ID, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return 0, 0, false
	}
	orgID, ok := s.orgIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return 0, 0, false
	}
	return orgID, id, true
}
