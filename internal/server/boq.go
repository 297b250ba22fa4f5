package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/boq/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) CreateBoq(c *gin.Context) {
	var req boqdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	resp, err := s.boqSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListBoqs(c *gin.Context) {
	var req boqdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	resp, err := s.boqSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Projects, "page_info": resp.PageInfo})
}

func (s *Server) GetBoq(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.boqSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateBoq(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req boqdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.boqSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ExportBoq(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	boq, err := s.boqSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := export.Workbook(boq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(boq)))
	c.Data(http.StatusOK, xlsxContentType, body)
}

func (s *Server) SubmitBoq(c *gin.Context)   { s.transitionBoq(c, s.boqSvc.Submit) }
func (s *Server) ApproveBoq(c *gin.Context)  { s.transitionBoq(c, s.boqSvc.Approve) }
func (s *Server) StartBoq(c *gin.Context)    { s.transitionBoq(c, s.boqSvc.StartProgress) }
func (s *Server) MarkBoqDone(c *gin.Context) { s.transitionBoq(c, s.boqSvc.MarkDone) }
func (s *Server) CancelBoq(c *gin.Context)   { s.transitionBoq(c, s.boqSvc.Cancel) }
func (s *Server) ResetBoq(c *gin.Context)    { s.transitionBoq(c, s.boqSvc.ResetToDraft) }

func (s *Server) transitionBoq(c *gin.Context, fn func(context.Context, snowflake.ID) (*boqdomain.Project, error)) {
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

func (s *Server) AddActivity(c *gin.Context) {
	boqID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req boqdomain.ActivityInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	resp, err := s.boqSvc.AddActivity(c.Request.Context(), boqID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateActivity(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req boqdomain.ActivityUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.boqSvc.UpdateActivity(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveActivity(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.boqSvc.RemoveActivity(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) AddSubActivity(c *gin.Context) {
	activityID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req boqdomain.SubActivityInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.boqSvc.AddSubActivity(c.Request.Context(), activityID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateSubActivity(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req boqdomain.SubActivityUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.boqSvc.UpdateSubActivity(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveSubActivity(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.boqSvc.RemoveSubActivity(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) AddAdditionalCost(c *gin.Context) {
	subID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req boqdomain.AdditionalCostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	resp, err := s.boqSvc.AddAdditionalCost(c.Request.Context(), subID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) RemoveAdditionalCost(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.boqSvc.RemoveAdditionalCost(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
