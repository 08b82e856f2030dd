package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/davenfroberg/gpta-backend/internal/folders"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type FolderHandler struct {
	log     *logger.Logger
	folders *folders.Service
}

func NewFolderHandler(log *logger.Logger, folderService *folders.Service) *FolderHandler {
	return &FolderHandler{
		log:     log.With("handler", "FolderHandler"),
		folders: folderService,
	}
}

func (fh *FolderHandler) Get(c *gin.Context) {
	course := c.Param("course")
	if decoded, err := url.QueryUnescape(course); err == nil {
		course = decoded
	}

	list, err := fh.folders.Get(c.Request.Context(), course)
	if err != nil {
		fh.log.Warn("Folder lookup failed", "course", course, "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}
