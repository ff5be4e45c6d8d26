package httpapi

import (
	"encoding/json"
	"time"

	"opsreport/internal/core"
	"opsreport/pkg/domain"
)

type createApprovalBody struct {
	RequestType core.RequestType `json:"requestType"`
	TableName   core.TableName   `json:"tableName"`
	RecordID    *string          `json:"recordId"`
	OldData     json.RawMessage  `json:"oldData"`
	NewData     json.RawMessage  `json:"newData"`
	Reason      string           `json:"reason"`
}

func (b createApprovalBody) input() core.CreateRequestInput {
	return core.CreateRequestInput{
		RequestType: b.RequestType,
		TableName:   b.TableName,
		RecordID:    b.RecordID,
		OldData:     payloadOf(b.OldData),
		NewData:     payloadOf(b.NewData),
		Reason:      b.Reason,
	}
}

func payloadOf(raw json.RawMessage) core.ChangePayload {
	if len(raw) == 0 {
		return domain.UndefinedChangePayload()
	}
	return domain.NewChangePayload(raw)
}

type resolveBody struct {
	Status core.ApprovalStatus `json:"status"`
}

type recordBody struct {
	Data   json.RawMessage `json:"data"`
	Reason string          `json:"reason"`
}

type approvalResponse struct {
	ID            string              `json:"id"`
	RequesterID   int64               `json:"requesterId"`
	RequesterRole core.Role           `json:"requesterRole"`
	ApproverID    *int64              `json:"approverId"`
	Status        core.ApprovalStatus `json:"status"`
	RequestType   core.RequestType    `json:"requestType"`
	TableName     core.TableName      `json:"tableName"`
	RecordID      *string             `json:"recordId"`
	DepartmentID  *int64              `json:"departmentId,omitempty"`
	OldData       core.ChangePayload  `json:"oldData"`
	NewData       core.ChangePayload  `json:"newData"`
	Reason        string              `json:"reason,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	ApprovedAt    *time.Time          `json:"approvedAt"`
}

func toApprovalResponse(req core.ApprovalRequest) approvalResponse {
	return approvalResponse{
		ID:            req.ID,
		RequesterID:   req.RequesterID,
		RequesterRole: req.RequesterRole,
		ApproverID:    req.ApproverID,
		Status:        req.Status,
		RequestType:   req.RequestType,
		TableName:     req.TableName,
		RecordID:      req.RecordID,
		DepartmentID:  req.DepartmentID,
		OldData:       req.OldData,
		NewData:       req.NewData,
		Reason:        req.Reason,
		CreatedAt:     req.CreatedAt,
		ApprovedAt:    req.ApprovedAt,
	}
}

type listResponse struct {
	Items []approvalResponse          `json:"items"`
	Total int                         `json:"total"`
	Page  int                         `json:"page"`
	Limit int                         `json:"limit"`
	Stats map[core.ApprovalStatus]int `json:"stats"`
}

func toListResponse(res core.ListResult) listResponse {
	items := make([]approvalResponse, 0, len(res.Items))
	for _, req := range res.Items {
		items = append(items, toApprovalResponse(req))
	}
	return listResponse{Items: items, Total: res.Total, Page: res.Page, Limit: res.Limit, Stats: res.Stats}
}

type recordResponse struct {
	ID           string          `json:"id"`
	Table        core.TableName  `json:"table"`
	DepartmentID int64           `json:"departmentId"`
	CreatedBy    *int64          `json:"createdBy"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func toRecordResponse(rec core.Record) recordResponse {
	return recordResponse{
		ID:           rec.ID,
		Table:        rec.Table,
		DepartmentID: rec.DepartmentID,
		CreatedBy:    rec.CreatedBy,
		Data:         rec.Data,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

type mutationResponse struct {
	Applied         bool              `json:"applied"`
	Record          *recordResponse   `json:"record,omitempty"`
	ApprovalRequest *approvalResponse `json:"approvalRequest,omitempty"`
}

func toMutationResponse(out core.MutationOutcome) mutationResponse {
	resp := mutationResponse{Applied: out.Applied}
	if out.Record != nil {
		rec := toRecordResponse(*out.Record)
		resp.Record = &rec
	}
	if out.Request != nil {
		req := toApprovalResponse(*out.Request)
		resp.ApprovalRequest = &req
	}
	return resp
}

type archivedResponse struct {
	Request       approvalResponse `json:"request"`
	AppliedRecord *recordResponse  `json:"appliedRecord,omitempty"`
	ArchivedAt    time.Time        `json:"archivedAt"`
}

func toArchivedResponse(a core.ArchivedResolution) archivedResponse {
	resp := archivedResponse{Request: toApprovalResponse(a.Request), ArchivedAt: a.ArchivedAt}
	if a.AppliedRecord != nil {
		rec := toRecordResponse(*a.AppliedRecord)
		resp.AppliedRecord = &rec
	}
	return resp
}

type archiveEntryResponse struct {
	Key        string              `json:"key"`
	ApprovalID string              `json:"approvalId"`
	Status     core.ApprovalStatus `json:"status"`
	TableName  core.TableName      `json:"tableName"`
	Size       int64               `json:"sizeBytes"`
	ArchivedAt time.Time           `json:"archivedAt"`
}

type archiveListResponse struct {
	Items []archiveEntryResponse `json:"items"`
}

func toArchiveListResponse(entries []core.ArchiveEntry) archiveListResponse {
	items := make([]archiveEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, archiveEntryResponse(e))
	}
	return archiveListResponse{Items: items}
}
