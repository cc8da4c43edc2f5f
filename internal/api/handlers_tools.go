package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/strata"
)

const adapterID = "http"

type ToolsHandler struct {
	engine *strata.Engine
}

func NewToolsHandler(engine *strata.Engine) *ToolsHandler {
	return &ToolsHandler{engine: engine}
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// List handles GET /v1/tools
func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	specs := h.engine.Dispatcher().Tools()
	infos := make([]toolInfo, 0, len(specs))
	for _, spec := range specs {
		infos = append(infos, toolInfo{Name: spec.Name, Description: spec.Description})
	}
	writeJSON(w, http.StatusOK, infos)
}

// Call handles POST /v1/tools/{name}. The body is the tool's argument
// object; the response is the dispatcher's envelope verbatim. Tool-level
// failures still return 200 so callers distinguish transport errors from
// degraded answers by the status field.
func (h *ToolsHandler) Call(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	args := map[string]any{}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil && err.Error() != "EOF" {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	resp := h.engine.Dispatcher().Dispatch(r.Context(), strata.ToolRequest{
		Tool:      name,
		Arguments: args,
		AdapterID: adapterID,
	})

	status := http.StatusOK
	if resp.Status == strata.StatusError && strings.HasPrefix(resp.Message, strata.ErrToolNotFound.Error()) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, resp)
}
