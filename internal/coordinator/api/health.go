package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	response := gin.H{
		"status":    "ok",
		"service":   ServiceName,
		"version":   s.config.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.deps.Watermark != nil {
		response["last_handled_block"] = s.deps.Watermark.LastHandledBlock()
	}
	if s.deps.DispatchQueue != nil {
		response["dispatch_queue"] = s.deps.DispatchQueue.Len()
	}
	if s.deps.ProofQueue != nil {
		response["proof_queue"] = s.deps.ProofQueue.Len()
	}
	c.JSON(http.StatusOK, response)
}
