package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/nexus-edge/anolis/internal/kernel"
	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernelerr"
)

type deviceHandler struct {
	k *kernel.Kernel
}

// List returns every registered device's handle and capability set.
func (h *deviceHandler) List(c *gin.Context) {
	respondOK(c, h.k.Registry.AllDevices())
}

func handleParam(c *gin.Context) string {
	return domain.BuildHandle(c.Param("provider"), c.Param("device"))
}

// Get returns one device's capability set by "provider_id/device_id" handle.
func (h *deviceHandler) Get(c *gin.Context) {
	dev, err := h.k.Registry.GetByHandle(handleParam(c))
	if err != nil {
		respondKernelErr(c, err)
		return
	}
	respondOK(c, dev)
}

// GetState returns the device's current cached state from the State Cache.
func (h *deviceHandler) GetState(c *gin.Context) {
	state, err := h.k.Cache.GetDeviceState(handleParam(c))
	if err != nil {
		respondKernelErr(c, err)
		return
	}
	respondOK(c, state)
}

func respondKernelErr(c *gin.Context, err error) {
	kind := kernelerr.KindOf(err)
	respondError(c, statusForKind(string(kind)), err.Error())
}
