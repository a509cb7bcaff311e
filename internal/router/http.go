package router

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// HTTPHandler adapts the dispatcher to the one-shot HTTP endpoint.
// Transport success and business success are independent: a malformed
// or failing command still answers 200 with a success:false envelope,
// so callers only ever parse one shape.
func (r *Router) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		var msg Request
		if err := json.NewDecoder(req.Body).Decode(&msg); err != nil {
			json.NewEncoder(w).Encode(Response{
				Success: false,
				Error:   "Invalid request",
				Details: err.Error(),
			})
			return
		}

		from := Sender{Origin: req.Header.Get("X-Copilot-Origin")}
		if tab := req.Header.Get("X-Copilot-Tab"); tab != "" {
			if id, err := strconv.Atoi(tab); err == nil {
				from.TabID = id
			}
		}

		resp := r.Dispatch(req.Context(), msg, from)
		json.NewEncoder(w).Encode(resp)
	}
}
