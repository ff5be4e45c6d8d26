package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"opsreport/internal/core"
	"opsreport/pkg/domain"
)

func (s *Server) handleCreateApproval(w http.ResponseWriter, r *http.Request) {
	var body createApprovalBody
	if !s.decodeBody(w, r, &body, false) {
		return
	}
	created, err := s.service.CreateApprovalRequest(r.Context(), principal(r), body.input())
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApprovalResponse(created))
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := core.ListOptions{
		Status:      core.ApprovalStatus(q.Get("status")),
		RequestType: core.RequestType(q.Get("requestType")),
	}
	var err error
	if opts.Page, err = intParam(q.Get("page"), "page"); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if opts.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	res, err := s.service.ListApprovalRequests(r.Context(), principal(r), opts)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(res))
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	req, err := s.service.GetApprovalRequest(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalResponse(req))
}

func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	var body resolveBody
	if !s.decodeBody(w, r, &body, false) {
		return
	}
	resolved, err := s.service.ResolveApprovalRequest(r.Context(), principal(r), mux.Vars(r)["id"], body.Status)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalResponse(resolved))
}

func (s *Server) handleDeleteApproval(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteApprovalRequest(r.Context(), principal(r), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetArchivedResolution(w http.ResponseWriter, r *http.Request) {
	archived, err := s.service.GetArchivedResolution(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toArchivedResponse(archived))
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListArchive(r.Context(), principal(r), r.URL.Query().Get("month"))
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toArchiveListResponse(entries))
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	s.submitMutation(w, r, core.ActionCreate, false)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	s.submitMutation(w, r, core.ActionUpdate, false)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	s.submitMutation(w, r, core.ActionDelete, true)
}

// submitMutation answers 201 for direct creations, 200 for other direct
// writes and 202 when the change was filed for approval.
func (s *Server) submitMutation(w http.ResponseWriter, r *http.Request, action core.Action, optionalBody bool) {
	var body recordBody
	if !s.decodeBody(w, r, &body, optionalBody) {
		return
	}
	vars := mux.Vars(r)
	out, err := s.service.SubmitMutation(r.Context(), principal(r), core.MutationInput{
		Action:   action,
		Table:    core.TableName(vars["table"]),
		RecordID: vars["id"],
		Data:     body.Data,
		Reason:   body.Reason,
	})
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	status := http.StatusAccepted
	if out.Applied {
		status = http.StatusOK
		if action == core.ActionCreate {
			status = http.StatusCreated
		}
	}
	writeJSON(w, status, toMutationResponse(out))
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rec, err := s.service.GetRecord(r.Context(), principal(r), core.TableName(vars["table"]), vars["id"])
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

func intParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Invalid(field, "must be an integer")
	}
	return n, nil
}
