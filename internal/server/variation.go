package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	variationdomain "github.com/smallbiznis/boqledger/internal/variation/domain"
)

type setApproversRequest struct {
	Approvers []string `json:"approver_ids"`
}

func (s *Server) CreateVariation(c *gin.Context) {
	var req variationdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)

	resp, err := s.variationSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListVariations(c *gin.Context) {
	var req variationdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.variationSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Variations, "page_info": resp.PageInfo})
}

func (s *Server) GetVariation(c *gin.Context) {
	s.variationAction(c, s.variationSvc.Get)
}

func (s *Server) UpdateVariation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req variationdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.variationSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetVariationApprovers(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req setApproversRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.variationSvc.SetApprovers(c.Request.Context(), id, req.Approvers)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddVariationLine(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req variationdomain.LineInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.variationSvc.AddLine(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateVariationLine(c *gin.Context) {
	lineID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req variationdomain.LineUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.variationSvc.UpdateLine(c.Request.Context(), lineID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveVariationLine(c *gin.Context) {
	s.variationAction(c, s.variationSvc.RemoveLine)
}

func (s *Server) MarkVariationToSubmit(c *gin.Context) {
	s.variationAction(c, s.variationSvc.MarkToSubmit)
}

func (s *Server) SubmitVariation(c *gin.Context) {
	s.variationAction(c, s.variationSvc.Submit)
}

func (s *Server) ApproveVariation(c *gin.Context) {
	s.variationAction(c, s.variationSvc.Approve)
}

func (s *Server) RefuseVariation(c *gin.Context) {
	s.variationAction(c, s.variationSvc.Refuse)
}

func (s *Server) CancelVariation(c *gin.Context) {
	s.variationAction(c, s.variationSvc.Cancel)
}

func (s *Server) ApplyVariation(c *gin.Context) {
	s.variationAction(c, s.variationSvc.Apply)
}

func (s *Server) variationAction(c *gin.Context, fn func(context.Context, snowflake.ID) (*variationdomain.Variation, error)) {
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
