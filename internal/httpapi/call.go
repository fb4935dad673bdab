package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/nexus-edge/anolis/internal/kernel"
	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/router"
)

type callHandler struct {
	k *kernel.Kernel
}

// callArg is the wire shape of one call argument; Type selects which of the
// numbered fields is meaningful, mirroring domain.TypedValue's tagged union.
type callArg struct {
	Type   domain.ValueType `json:"type"`
	Double float64          `json:"double,omitempty"`
	Int64  int64            `json:"int64,omitempty"`
	Uint64 uint64           `json:"uint64,omitempty"`
	Bool   bool             `json:"bool,omitempty"`
	Str    string           `json:"string,omitempty"`
}

func (a callArg) toTypedValue() domain.TypedValue {
	switch a.Type {
	case domain.ValueDouble:
		return domain.Double(a.Double)
	case domain.ValueInt64:
		return domain.Int64Value(a.Int64)
	case domain.ValueUint64:
		return domain.Uint64Value(a.Uint64)
	case domain.ValueBool:
		return domain.Bool(a.Bool)
	case domain.ValueString:
		return domain.String(a.Str)
	default:
		return domain.TypedValue{}
	}
}

type callRequestBody struct {
	FunctionName string             `json:"function_name"`
	FunctionID   *uint32            `json:"function_id"`
	Args         map[string]callArg `json:"args"`
}

// Call dispatches one control call through the Call Router. Every HTTP call
// is manual (IsAutomated=false); only the behavior tree runtime sets that
// flag true (§4.4, §4.7, §9).
func (h *callHandler) Call(c *gin.Context) {
	var body callRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	args := make(map[string]domain.TypedValue, len(body.Args))
	for name, a := range body.Args {
		args[name] = a.toTypedValue()
	}

	req := router.CallRequest{
		DeviceHandle: handleParam(c),
		FunctionID:   body.FunctionID,
		FunctionName: body.FunctionName,
		Args:         args,
		IsAutomated:  false,
	}

	result, err := h.k.Router.ExecuteCall(c.Request.Context(), req)
	if err != nil {
		respondKernelErr(c, err)
		return
	}
	respondOK(c, result)
}
