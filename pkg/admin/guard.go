package admin

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/getmockd/imposterd/pkg/imposter"
)

// imposterHandler is a handler that receives the already-resolved imposter.
type imposterHandler func(w http.ResponseWriter, r *http.Request, imp *imposter.Imposter)

// resolveImposter is the existence guard: it parses the {port} path value
// and looks the imposter up once. A missing or malformed port is
// imposter.ErrNotFound.
func (a *API) resolveImposter(r *http.Request) (*imposter.Imposter, error) {
	raw := r.PathValue("port")
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("%w: %q is not a port", imposter.ErrNotFound, raw)
	}
	return a.manager.Get(port)
}

// withImposter runs next only when the guard resolves an imposter.
func (a *API) withImposter(next imposterHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imp, err := a.resolveImposter(r)
		if err != nil {
			a.writeError(w, err, "resolve imposter")
			return
		}
		next(w, r, imp)
	}
}
