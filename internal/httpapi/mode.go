package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/nexus-edge/anolis/internal/kernel"
	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernelerr"
)

type modeHandler struct {
	k *kernel.Kernel
}

func (h *modeHandler) Get(c *gin.Context) {
	respondOK(c, gin.H{"mode": h.k.Mode.CurrentMode()})
}

type setModeBody struct {
	Mode string `json:"mode" binding:"required"`
}

// Set attempts a mode transition through the Mode Manager's FSM. An
// unrecognized mode name surfaces as 400; a disallowed transition surfaces
// as FAILED_PRECONDITION, which statusForKind maps to 409 (§4.5, §7).
func (h *modeHandler) Set(c *gin.Context) {
	var body setModeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	target, ok := domain.ParseMode(body.Mode)
	if !ok {
		respondBadRequest(c, "unrecognized mode: "+body.Mode)
		return
	}

	if !h.k.Mode.SetMode(target) {
		respondKernelErr(c, kernelerr.Newf(kernelerr.FailedPrecondition, "transition from %s to %s is not allowed", h.k.Mode.CurrentMode(), target))
		return
	}
	respondOK(c, gin.H{"mode": h.k.Mode.CurrentMode()})
}
