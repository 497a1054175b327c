package main

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MasumNishat/signing-sub001/internal/docstore"
	"github.com/MasumNishat/signing-sub001/internal/uploads"
	"github.com/MasumNishat/signing-sub001/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// uploadErrorStatus maps engine error kinds to stable HTTP statuses.
func uploadErrorStatus(err error) int {
	switch uploads.ErrKind(err) {
	case uploads.KindValidation:
		return http.StatusBadRequest
	case uploads.KindNotFound:
		return http.StatusNotFound
	case uploads.KindCapacity:
		return http.StatusRequestEntityTooLarge
	case uploads.KindConflict:
		return http.StatusConflict
	case uploads.KindIntegrity, uploads.KindEmptyUpload:
		return http.StatusUnprocessableEntity
	case uploads.KindExpired:
		return http.StatusGone
	case uploads.KindStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func uploadError(c *gin.Context, err error) {
	c.JSON(uploadErrorStatus(err), types.APIResponse{
		Success: false,
		Error:   err.Error(),
		Kind:    string(uploads.ErrKind(err)),
	})
}

// readChunkBody reads the raw chunk payload, bounded just above the maximum
// declarable chunk size so oversized bodies fail fast.
func readChunkBody(c *gin.Context) ([]byte, bool) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, uploads.MaxChunkSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "Failed to read request body",
		})
		return nil, false
	}
	return payload, true
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, types.APIResponse{
			Success: false,
			Error:   "Unknown upload session",
			Kind:    string(uploads.KindNotFound),
		})
		return uuid.Nil, false
	}
	return id, true
}

// handleInitiateUpload starts a session with the request body as part 0.
// Options come from query parameters: chunk_size, max_chunks, expiration_hours.
func handleInitiateUpload(manager *uploads.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, ok := readChunkBody(c)
		if !ok {
			return
		}

		var opts uploads.Options
		if v := c.Query("chunk_size"); v != "" {
			size, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: "Invalid chunk_size"})
				return
			}
			opts.ChunkSize = size
		}
		if v := c.Query("max_chunks"); v != "" {
			count, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: "Invalid max_chunks"})
				return
			}
			opts.MaxChunks = count
		}
		if v := c.Query("expiration_hours"); v != "" {
			hours, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: "Invalid expiration_hours"})
				return
			}
			opts.ExpirationHours = time.Duration(hours) * time.Hour
		}

		snapshot, err := manager.Initiate(c.Request.Context(), currentOwner(c), payload, opts)
		if err != nil {
			uploadError(c, err)
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Data:    snapshot,
		})
	}
}

func handleUploadMetadata(manager *uploads.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseSessionID(c)
		if !ok {
			return
		}

		snapshot, err := manager.GetMetadata(c.Request.Context(), currentOwner(c), id)
		if err != nil {
			uploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    snapshot,
		})
	}
}

func handleAddPart(manager *uploads.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseSessionID(c)
		if !ok {
			return
		}

		sequence, err := strconv.Atoi(c.Param("sequence"))
		if err != nil || sequence < 0 {
			c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: "Invalid sequence number"})
			return
		}

		payload, ok := readChunkBody(c)
		if !ok {
			return
		}

		snapshot, err := manager.AddChunk(c.Request.Context(), currentOwner(c), id, sequence, payload)
		if err != nil {
			uploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Data:    snapshot,
		})
	}
}

// handleCommitUpload commits the session and hands the assembled object to
// the document store.
func handleCommitUpload(manager *uploads.Manager, documents *docstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseSessionID(c)
		if !ok {
			return
		}

		owner := currentOwner(c)
		assembled, snapshot, err := manager.Commit(c.Request.Context(), owner, id)
		if err != nil {
			uploadError(c, err)
			return
		}

		name := c.Query("name")
		if name == "" {
			name = id.String()
		}
		contentType := c.GetHeader("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		doc, err := documents.Adopt(c.Request.Context(), owner, name, contentType, assembled)
		if err != nil {
			c.JSON(http.StatusBadGateway, types.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Message: "Upload committed",
			Data: gin.H{
				"session":  snapshot,
				"document": doc,
				"checksum": assembled.Checksum,
				"size":     assembled.Size,
			},
		})
	}
}

func handleDeleteUpload(manager *uploads.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseSessionID(c)
		if !ok {
			return
		}

		if err := manager.Delete(c.Request.Context(), currentOwner(c), id); err != nil {
			uploadError(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}
