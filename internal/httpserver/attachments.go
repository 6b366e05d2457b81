package httpserver

import (
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	range_parser "github.com/quantumsheep/range-parser"
	"go.uber.org/zap"
)

// LoadAttachments registers the attachment-serving route: a File's
// contents by id, with HTTP Range support for video/document streaming,
// read from the file's local path on disk rather than a live Telegram
// fetch.
func (e *allRoutes) LoadAttachments(r *Route) {
	attachLog := e.log.Named("Attachments")
	defer attachLog.Info("Loaded attachments route")
	r.Engine.GET("/attachments/:id", getAttachmentRoute(e, attachLog))
}

func getAttachmentRoute(e *allRoutes, logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		idParam := ctx.Param("id")
		id, err := strconv.ParseInt(idParam, 10, 64)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
			return
		}

		file, err := e.store.GetFile(ctx.Request.Context(), id)
		if err != nil {
			logger.Error("loading file", zap.Int64("id", id), zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load file"})
			return
		}
		if file == nil || file.LocalPath == nil {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "file not found or not yet downloaded"})
			return
		}

		stat, err := os.Stat(*file.LocalPath)
		if err != nil {
			logger.Error("stat'ing local file", zap.String("path", *file.LocalPath), zap.Error(err))
			ctx.JSON(http.StatusNotFound, gin.H{"error": "file missing on disk"})
			return
		}
		fileSize := stat.Size()

		mtype, err := mimetype.DetectFile(*file.LocalPath)
		contentType := "application/octet-stream"
		if err == nil {
			contentType = mtype.String()
		}

		w := ctx.Writer
		r := ctx.Request
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Type", contentType)

		var start, end int64
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			start, end = 0, fileSize-1
			w.WriteHeader(http.StatusOK)
		} else {
			ranges, err := range_parser.Parse(fileSize, rangeHeader)
			if err != nil || len(ranges) == 0 {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid range header"})
				return
			}
			start, end = ranges[0].Start, ranges[0].End
			w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(fileSize, 10))
			w.WriteHeader(http.StatusPartialContent)
		}
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))

		if r.Method == http.MethodHead {
			return
		}

		f, err := os.Open(*file.LocalPath)
		if err != nil {
			logger.Error("opening local file", zap.String("path", *file.LocalPath), zap.Error(err))
			return
		}
		defer f.Close()

		if _, err := f.Seek(start, 0); err != nil {
			logger.Error("seeking local file", zap.Error(err))
			return
		}
		if _, err := io.CopyN(w, f, end-start+1); err != nil {
			logger.Warn("streaming attachment ended early", zap.Int64("id", id), zap.Error(err))
		}
	}
}
