package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/nexus-edge/anolis/internal/kernel"
)

type parameterHandler struct {
	k *kernel.Kernel
}

func (h *parameterHandler) List(c *gin.Context) {
	respondOK(c, h.k.Parameter.GetAllDefinitions())
}

func (h *parameterHandler) Get(c *gin.Context) {
	name := c.Param("name")
	def, err := h.k.Parameter.GetDefinition(name)
	if err != nil {
		respondKernelErr(c, err)
		return
	}
	respondOK(c, def)
}

type setParameterBody struct {
	Value callArg `json:"value" binding:"required"`
}

// Set writes a new parameter value through the Parameter Manager, which
// validates it against the definition's type/range/allow-list (§4.6).
func (h *parameterHandler) Set(c *gin.Context) {
	name := c.Param("name")
	var body setParameterBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	if err := h.k.Parameter.Set(name, body.Value.toTypedValue()); err != nil {
		respondKernelErr(c, err)
		return
	}
	respondOK(c, gin.H{"name": name})
}
