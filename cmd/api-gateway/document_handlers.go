package main

import (
	"net/http"

	"github.com/MasumNishat/signing-sub001/internal/docstore"
	"github.com/MasumNishat/signing-sub001/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func handleGetDocument(documents *docstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   "Unknown document",
			})
			return
		}

		doc, err := documents.Get(c.Request.Context(), currentOwner(c), id)
		if err != nil {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    doc,
		})
	}
}

func handleDownloadDocument(documents *docstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   "Unknown document",
			})
			return
		}

		doc, content, err := documents.Open(c.Request.Context(), currentOwner(c), id)
		if err != nil {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		contentType := doc.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Data(http.StatusOK, contentType, content)
	}
}
