package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/getmockd/imposterd/pkg/engine"
	"github.com/getmockd/imposterd/pkg/httputil"
	"github.com/getmockd/imposterd/pkg/imposter"
)

const maxBodyBytes = 10 << 20

// imposterList is the collection envelope.
type imposterList struct {
	Imposters []*imposter.Descriptor `json:"imposters"`
}

func describeOptions(r *http.Request) imposter.DescribeOptions {
	replayable, _ := strconv.ParseBool(r.URL.Query().Get("replayable"))
	return imposter.DescribeOptions{Replayable: replayable}
}

func describeAll(imps []*imposter.Imposter, state imposter.State, opts imposter.DescribeOptions) imposterList {
	out := imposterList{Imposters: make([]*imposter.Descriptor, 0, len(imps))}
	for _, imp := range imps {
		out.Imposters = append(out.Imposters, imp.Describe(state, opts))
	}
	return out
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, imposter.Configurationf("unable to read request body: %v", err)
	}
	return body, nil
}

// handleListImposters handles GET /imposters.
func (a *API) handleListImposters(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, describeAll(a.manager.List(), imposter.StateRunning, describeOptions(r)))
}

// handleCreateImposter handles POST /imposters.
func (a *API) handleCreateImposter(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		a.writeError(w, err, "create imposter")
		return
	}
	cfg, err := imposter.ParseConfig(body)
	if err != nil {
		a.writeError(w, err, "create imposter")
		return
	}

	imp, err := a.manager.Create(r.Context(), cfg)
	if err != nil {
		a.writeError(w, err, "create imposter")
		return
	}
	httputil.WriteCreated(w,
		fmt.Sprintf("/imposters/%d", imp.Port()),
		imp.Describe(imposter.StateRunning, imposter.DescribeOptions{}),
	)
}

// handleReplaceImposters handles PUT /imposters.
//
// Payloads are validated in order while being created: everything before
// the first invalid or failing entry stays running, the rest is skipped,
// and the error carries failedIndex.
func (a *API) handleReplaceImposters(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		a.writeError(w, err, "replace imposters")
		return
	}

	var req struct {
		Imposters []json.RawMessage `json:"imposters"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		a.writeError(w, imposter.Configurationf("invalid JSON: %v", err), "replace imposters")
		return
	}
	if req.Imposters == nil {
		a.writeError(w, imposter.Configurationf(`"imposters" must be an array`), "replace imposters")
		return
	}

	cfgs := make([]*imposter.Config, 0, len(req.Imposters))
	var parseErr error
	for i, raw := range req.Imposters {
		cfg, err := imposter.ParseConfig(raw)
		if err != nil {
			parseErr = &engine.ReplaceError{Index: i, Err: err}
			break
		}
		cfgs = append(cfgs, cfg)
	}

	created, err := a.manager.ReplaceAll(r.Context(), cfgs)
	if err == nil {
		err = parseErr
	}
	if err != nil {
		idx, _ := engine.FailedIndex(err)
		a.writeErrorWithDetails(w, err, "replace imposters", map[string]any{
			"failedIndex": idx,
			"imposters":   describeAll(created, imposter.StateRunning, imposter.DescribeOptions{}).Imposters,
		})
		return
	}
	httputil.WriteOK(w, describeAll(created, imposter.StateRunning, imposter.DescribeOptions{}))
}

// handleDeleteImposters handles DELETE /imposters.
func (a *API) handleDeleteImposters(w http.ResponseWriter, r *http.Request) {
	removed := a.manager.DeleteAll(r.Context())
	httputil.WriteOK(w, describeAll(removed, imposter.StateStopped, describeOptions(r)))
}

// handleGetImposter handles GET /imposters/{port}.
func (a *API) handleGetImposter(w http.ResponseWriter, r *http.Request, imp *imposter.Imposter) {
	httputil.WriteOK(w, imp.Describe(imposter.StateRunning, describeOptions(r)))
}

// handleDeleteImposter handles DELETE /imposters/{port}. It is not guarded:
// deleting a port with no imposter, or a path that is not a port, answers
// 200 with an empty object.
func (a *API) handleDeleteImposter(w http.ResponseWriter, r *http.Request) {
	port, err := strconv.Atoi(r.PathValue("port"))
	if err != nil || port <= 0 {
		httputil.WriteOK(w, struct{}{})
		return
	}

	imp, err := a.manager.DeleteOne(r.Context(), port)
	if err != nil {
		a.writeError(w, err, "delete imposter")
		return
	}
	if imp == nil {
		httputil.WriteOK(w, struct{}{})
		return
	}
	httputil.WriteOK(w, imp.Describe(imposter.StateStopped, describeOptions(r)))
}

// handleClearRequests handles DELETE /imposters/{port}/savedRequests.
func (a *API) handleClearRequests(w http.ResponseWriter, r *http.Request, imp *imposter.Imposter) {
	if store := imp.Requests(); store != nil {
		store.Clear()
	}
	httputil.WriteOK(w, imp.Describe(imposter.StateRunning, imposter.DescribeOptions{}))
}
