package handlers

import (
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/metadata"
	"github.com/ngasd/ngasd/internal/node"
)

// Version is reported by the health endpoint
var Version = "1.0.0"

// Handler contains all HTTP handlers
type Handler struct {
	logger  *logging.Logger
	node    *node.Node
	gateway metadata.Gateway
}

// New creates a new handler instance
func New(logger *logging.Logger, n *node.Node, gateway metadata.Gateway) *Handler {
	return &Handler{
		logger:  logger.Component("http"),
		node:    n,
		gateway: gateway,
	}
}
