// Package rest is the reference host adapter (§6 Exposed, C13): it decodes an inbound
// synthetic "search-like" request into a rule.Request, runs the rule engine (which infers
// the request kind and builds each block's initial BlockContext), and maps the Outcome
// back to HTTP. A production ES-version adapter
// would decode a real wire request instead of this package's JSON reification.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/kubilitics/kubilitics-backend/internal/authbackend"
	"github.com/kubilitics/kubilitics-backend/internal/block"
	"github.com/kubilitics/kubilitics-backend/internal/engine"
	"github.com/kubilitics/kubilitics-backend/internal/historystore"
	"github.com/kubilitics/kubilitics-backend/internal/lookup"
	"github.com/kubilitics/kubilitics-backend/internal/name"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/validate"
	"github.com/kubilitics/kubilitics-backend/internal/rule"
	"github.com/kubilitics/kubilitics-backend/internal/variable"
)

// EvaluateRequest is the JSON reification of a classified request (§6).
type EvaluateRequest struct {
	Action        string            `json:"action"`
	URIPath       string            `json:"uriPath"`
	Indices       []string          `json:"indices"`
	RemoteIndices []string          `json:"remoteIndices"`
	KibanaApp     string            `json:"kibanaApp"`
	TemplateOp    *TemplateOpDTO    `json:"templateOp"`
	Snapshots     []string          `json:"snapshot"`
	Repositories  []string          `json:"repository"`
	Credential    *CredentialDTO    `json:"credential"`
	Headers       map[string]string `json:"headers"`
	ClusterKey    string            `json:"clusterKey"`
}

// TemplateOpDTO is the wire shape of block.TemplateOperation.
type TemplateOpDTO struct {
	Kind           string   `json:"kind"`   // legacy | index | component
	Action         string   `json:"action"` // get | add | delete
	RequestedNames []string `json:"requestedNames"`
	TemplateName   string   `json:"templateName"`
	IndexPatterns  []string `json:"indexPatterns"`
}

// CredentialDTO carries whichever one credential kind the request authenticates with.
type CredentialDTO struct {
	Kind     string   `json:"kind"` // basic | proxy | jwt | apikey
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	Groups   []string `json:"groups,omitempty"`
	Token    string   `json:"token,omitempty"`
	Key      string   `json:"key,omitempty"`
}

// EvaluateResponse is what the reference adapter returns for every request.
type EvaluateResponse struct {
	Outcome      string   `json:"outcome"`
	Block        string   `json:"block,omitempty"`
	Causes       []string `json:"causes,omitempty"`
	ErrorMessage string   `json:"error,omitempty"`
}

// Handler wires the rule engine and its collaborators into an http.Handler.
type Handler struct {
	Blocks      []engine.Block
	Backend     authbackend.Backend
	Lookup      *lookup.Facade
	History     historystore.Store
	DefaultRole string
}

// NewHandler constructs a Handler ready to serve POST /api/v1/evaluate.
func NewHandler(blocks []engine.Block, backend authbackend.Backend, lookupFacade *lookup.Facade, history historystore.Store) *Handler {
	return &Handler{Blocks: blocks, Backend: backend, Lookup: lookupFacade, History: history}
}

// History handles GET /api/v1/history — the adapter's own admin surface for inspecting
// recent evaluation outcomes, guarded by middleware.RequireViewer rather than by the rule
// engine itself.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeJSON(w, http.StatusOK, EvaluateResponse{Outcome: "ok"})
		return
	}
	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := h.History.Recent(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, EvaluateResponse{Outcome: "error", ErrorMessage: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(records)
}

// Evaluate handles POST /api/v1/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var body EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, EvaluateResponse{Outcome: "error", ErrorMessage: "invalid request body"})
		return
	}

	req, err := h.buildRuleRequest(r.Context(), body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, EvaluateResponse{Outcome: "error", ErrorMessage: err.Error()})
		return
	}

	out, err := engine.Evaluate(r.Context(), h.Blocks, req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, EvaluateResponse{Outcome: "error", ErrorMessage: err.Error()})
		return
	}

	if h.History != nil {
		_ = h.History.Append(r.Context(), historystore.FromOutcome(out))
	}

	writeJSON(w, statusFor(out.Kind), responseFor(out))
}

func (h *Handler) buildRuleRequest(ctx context.Context, body EvaluateRequest) (*rule.Request, error) {
	req := &rule.Request{
		Action:             body.Action,
		Path:               body.URIPath,
		RequestedKibanaApp: name.Parse(name.KindKibanaApp, body.KibanaApp),
	}

	for _, idx := range body.Indices {
		req.RequestedIndices = append(req.RequestedIndices, name.ParseIndex(idx))
	}
	for _, idx := range body.RemoteIndices {
		req.RequestedIndices = append(req.RequestedIndices, name.ParseIndex(idx))
	}
	for _, s := range body.Snapshots {
		req.RequestedSnapshots = append(req.RequestedSnapshots, name.Parse(name.KindSnapshot, s))
	}
	for _, r := range body.Repositories {
		req.RequestedRepositories = append(req.RequestedRepositories, name.Parse(name.KindRepository, r))
	}
	if body.TemplateOp != nil {
		req.TemplateOp = templateOpFromDTO(*body.TemplateOp)
	}

	resolution := variable.ResolutionContext{}
	headers := make(map[string][]string, len(body.Headers))
	for k, v := range body.Headers {
		headers[k] = []string{v}
	}
	resolution.Headers = headers

	if body.Credential != nil {
		cred, err := credentialFromDTO(*body.Credential)
		if err != nil {
			return nil, err
		}
		req.Credential = cred

		if h.Backend != nil {
			user, err := h.Backend.Authenticate(ctx, cred)
			if err == nil && user != nil {
				resolution.User = user.ID
				resolution.JWTClaims = user.JWTClaims
				if len(user.Groups) > 0 {
					resolution.AvailableGroups = user.Groups
					resolution.CurrentGroup = user.Groups[0]
				}
			}
		}
	}
	req.Resolution = resolution

	if h.Lookup != nil && body.ClusterKey != "" {
		if !validate.ClusterKey(body.ClusterKey) {
			return nil, fmt.Errorf("invalid clusterKey")
		}
		universe, err := h.Lookup.Universe(ctx, body.ClusterKey)
		if err == nil {
			req.Universe = universe
		}
	}

	return req, nil
}

func templateOpFromDTO(dto TemplateOpDTO) block.TemplateOperation {
	op := block.TemplateOperation{
		Kind:           templateKindFromString(dto.Kind),
		Action:         templateActionFromString(dto.Action),
		TemplateName:   dto.TemplateName,
		RequestedNames: dto.RequestedNames,
	}
	for _, p := range dto.IndexPatterns {
		op.IndexPatterns = append(op.IndexPatterns, name.Parse(name.KindIndex, p))
	}
	return op
}

func templateKindFromString(s string) block.TemplateKind {
	switch s {
	case "index":
		return block.TemplateIndex
	case "component":
		return block.TemplateComponent
	default:
		return block.TemplateLegacy
	}
}

func templateActionFromString(s string) block.TemplateAction {
	switch s {
	case "add":
		return block.TemplateAdd
	case "delete":
		return block.TemplateDelete
	default:
		return block.TemplateGet
	}
}

func credentialFromDTO(dto CredentialDTO) (authbackend.Credential, error) {
	switch dto.Kind {
	case "basic":
		return authbackend.BasicCredential{Username: dto.Username, Password: dto.Password}, nil
	case "proxy":
		return authbackend.ProxyHeaderCredential{Username: dto.Username, Groups: dto.Groups}, nil
	case "jwt":
		return authbackend.JWTCredential{Raw: dto.Token}, nil
	case "apikey":
		return authbackend.APIKeyCredential{Key: dto.Key}, nil
	default:
		return nil, errUnknownCredentialKind(dto.Kind)
	}
}

type errUnknownCredentialKind string

func (e errUnknownCredentialKind) Error() string { return "unknown credential kind: " + string(e) }

func statusFor(kind engine.OutcomeKind) int {
	switch kind {
	case engine.OutcomeAllow:
		return http.StatusOK
	case engine.OutcomeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusForbidden
	}
}

func responseFor(out engine.Outcome) EvaluateResponse {
	resp := EvaluateResponse{Outcome: outcomeString(out.Kind), Block: out.MatchedBlock}
	for _, h := range out.History {
		if !h.Matched() {
			resp.Causes = append(resp.Causes, h.RejectionCause())
		}
	}
	return resp
}

func outcomeString(k engine.OutcomeKind) string {
	switch k {
	case engine.OutcomeAllow:
		return "allow"
	case engine.OutcomeForbiddenByMatched:
		return "forbidden_matched"
	case engine.OutcomeForbiddenByMismatched:
		return "forbidden_mismatched"
	case engine.OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

func writeJSON(w http.ResponseWriter, status int, body EvaluateResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
