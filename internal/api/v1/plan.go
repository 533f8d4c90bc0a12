package v1

import (
	"net/http"

	"github.com/subplane/subplane/internal/domain/plan"
	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/logger"

	"github.com/gin-gonic/gin"
)

// PlanHandler serves the static plan catalog
type PlanHandler struct {
	catalog *plan.Catalog
	log     *logger.Logger
}

func NewPlanHandler(
	catalog *plan.Catalog,
	log *logger.Logger,
) *PlanHandler {
	return &PlanHandler{
		catalog: catalog,
		log:     log,
	}
}

// @Summary List plans
// @Description List all plans in the catalog
// @Tags Plans
// @Produce json
// @Success 200 {array} plan.Plan
// @Router /plans [get]
func (h *PlanHandler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"plans":           h.catalog.List(),
		"default_plan_id": h.catalog.DefaultPlanID(),
	})
}

// @Summary Get a plan
// @Description Get a plan by ID
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} plan.Plan
// @Failure 404 {object} ierr.ErrorResponse
// @Router /plans/{id} [get]
func (h *PlanHandler) GetPlan(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("plan ID is required").
			WithHint("Plan ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	p, err := h.catalog.Get(id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, p)
}
