package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farmlean/agkaizen/taxonomy"
)

// TaxonomyHandler serves the advisory vocabulary so clients can render
// pickers and validate input locally.
type TaxonomyHandler struct {
	tax *taxonomy.Taxonomy
}

func NewTaxonomyHandler(tax *taxonomy.Taxonomy) *TaxonomyHandler {
	return &TaxonomyHandler{tax: tax}
}

func (h *TaxonomyHandler) HandleGet(c *gin.Context) {
	flows := h.tax.Flows()

	kpis := make(map[string][]string, len(flows))
	for _, flow := range flows {
		kpis[flow] = h.tax.KPIsFor(flow)
	}

	c.JSON(http.StatusOK, gin.H{
		"flows":        flows,
		"wastes":       h.tax.Wastes(),
		"default_kpis": kpis,
	})
}
