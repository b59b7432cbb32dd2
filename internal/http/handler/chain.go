package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callyard.app/switchboard/internal/http/dto"
)

type ChainHandler struct {
	chains [][]string
}

func NewChainHandler(chains [][]string) *ChainHandler {
	return &ChainHandler{chains: chains}
}

// List reports the configured chain layouts.
func (h *ChainHandler) List(c *gin.Context) {
	resp := dto.ListChainsResponse{Chains: make([]dto.ChainInfo, 0, len(h.chains))}
	for _, stages := range h.chains {
		resp.Chains = append(resp.Chains, dto.ChainInfo{Stages: stages})
	}
	c.JSON(http.StatusOK, resp)
}
