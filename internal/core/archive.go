package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"opsreport/internal/blob"
	"opsreport/internal/policy"
	"opsreport/pkg/domain"
)

const archivePrefix = "approvals/"

// ArchivedResolution is the immutable snapshot written after a resolution commits.
type ArchivedResolution struct {
	Request       ApprovalRequest `json:"request"`
	AppliedRecord *Record         `json:"applied_record,omitempty"`
	ArchivedAt    time.Time       `json:"archived_at"`
}

// ArchiveKey returns the object key of the resolution snapshot for req,
// bucketed by decision month.
func ArchiveKey(req ApprovalRequest) string {
	at := req.CreatedAt
	if req.ApprovedAt != nil {
		at = *req.ApprovedAt
	}
	at = at.UTC()
	return fmt.Sprintf("%s%04d/%02d/%s.json", archivePrefix, at.Year(), int(at.Month()), req.ID)
}

// archiveResolution writes the snapshot best-effort; the resolution is
// already committed, so failures are only logged.
func (s *Service) archiveResolution(ctx context.Context, req ApprovalRequest, applied *Record) {
	if s.archive == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	body, err := json.Marshal(ArchivedResolution{Request: req, AppliedRecord: applied, ArchivedAt: s.clock.Now().UTC()})
	if err != nil {
		s.logger.Warn("encode resolution archive", "approval_id", req.ID, "error", err)
		return
	}
	key := ArchiveKey(req)
	_, err = s.archive.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"status": string(req.Status),
			"table":  string(req.TableName),
		},
	})
	if err != nil {
		s.logger.Warn("archive resolution failed", "approval_id", req.ID, "key", key, "error", err)
		return
	}
	s.logger.Debug("resolution archived", "approval_id", req.ID, "key", key)
}

// ArchiveEntry describes one stored resolution snapshot.
type ArchiveEntry struct {
	Key        string
	ApprovalID string
	Status     ApprovalStatus
	TableName  TableName
	Size       int64
	ArchivedAt time.Time
}

// GetArchivedResolution reads the snapshot written when request id was
// resolved. Administrators only. The snapshot outlives the request, so it
// is still found after the request is deleted.
func (s *Service) GetArchivedResolution(ctx context.Context, p Principal, id string) (ArchivedResolution, error) {
	var out ArchivedResolution
	err := s.observe(ctx, OpGetArchivedResolution, p, func(ctx context.Context) (string, error) {
		if err := requireArchiveReader(p); err != nil {
			return id, err
		}
		missing := domain.NotFoundError{Entity: EntityArchivedResolution, ID: id}
		if s.archive == nil {
			return id, missing
		}
		key, ok, err := s.archiveKeyFor(ctx, id)
		if err != nil {
			return id, err
		}
		if !ok {
			return id, missing
		}
		_, rc, err := s.archive.Get(ctx, key)
		if errors.Is(err, blob.ErrNotFound) {
			return id, missing
		}
		if err != nil {
			return id, fmt.Errorf("read archive %s: %w", key, err)
		}
		defer func() { _ = rc.Close() }()
		if err := json.NewDecoder(rc).Decode(&out); err != nil {
			return id, fmt.Errorf("decode archive %s: %w", key, err)
		}
		return id, nil
	})
	if err != nil {
		return ArchivedResolution{}, err
	}
	return out, nil
}

// ListArchive lists archived resolutions, optionally narrowed to one
// decision month formatted as YYYY-MM. Administrators only.
func (s *Service) ListArchive(ctx context.Context, p Principal, month string) ([]ArchiveEntry, error) {
	var out []ArchiveEntry
	err := s.observe(ctx, OpListArchive, p, func(ctx context.Context) (string, error) {
		if err := requireArchiveReader(p); err != nil {
			return "", err
		}
		prefix := archivePrefix
		if month = strings.TrimSpace(month); month != "" {
			at, err := time.Parse("2006-01", month)
			if err != nil {
				return "", domain.Invalid("month", "must be formatted as YYYY-MM")
			}
			prefix = fmt.Sprintf("%s%04d/%02d/", archivePrefix, at.Year(), int(at.Month()))
		}
		out = []ArchiveEntry{}
		if s.archive == nil {
			return "", nil
		}
		infos, err := s.archive.List(ctx, prefix)
		if err != nil {
			return "", fmt.Errorf("list archive: %w", err)
		}
		for _, info := range infos {
			// List does not carry user metadata on every backend.
			head, err := s.archive.Head(ctx, info.Key)
			if errors.Is(err, blob.ErrNotFound) {
				continue
			}
			if err != nil {
				return "", fmt.Errorf("stat archive %s: %w", info.Key, err)
			}
			out = append(out, ArchiveEntry{
				Key:        head.Key,
				ApprovalID: strings.TrimSuffix(path.Base(head.Key), ".json"),
				Status:     ApprovalStatus(head.Metadata["status"]),
				TableName:  TableName(head.Metadata["table"]),
				Size:       head.Size,
				ArchivedAt: head.LastModified,
			})
		}
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// archiveKeyFor derives the key from the live request, falling back to a
// scan of the archive once the request has been deleted.
func (s *Service) archiveKeyFor(ctx context.Context, id string) (string, bool, error) {
	if req, ok := s.store.GetApprovalRequest(id); ok {
		if req.Status.IsPending() {
			return "", false, nil
		}
		return ArchiveKey(req), true, nil
	}
	infos, err := s.archive.List(ctx, archivePrefix)
	if err != nil {
		return "", false, fmt.Errorf("list archive: %w", err)
	}
	suffix := "/" + id + ".json"
	for _, info := range infos {
		if strings.HasSuffix(info.Key, suffix) {
			return info.Key, true, nil
		}
	}
	return "", false, nil
}

func requireArchiveReader(p Principal) error {
	if err := requireAuthenticated(p); err != nil {
		return err
	}
	return policy.RequireReadArchive(p)
}
