package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"locker/internal/assets"
	"locker/internal/records"
)

type deleteRequest struct {
	FilePath string `json:"filePath" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type entityRequest struct {
	DisplayName string `json:"displayName" validate:"max=200"`
}

type entityResponse struct {
	EntityType  string `json:"entityType"`
	EntityID    string `json:"entityId"`
	DisplayName string `json:"displayName,omitempty"`
}

type assetListResponse struct {
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Assets     []records.Asset `json:"assets"`
}

// recordKey normalizes a client supplied path to the form stored in the
// record store.
func recordKey(p string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
}

func (s *Server) handleDelete(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Request body must be a JSON object")
		return
	}
	if req.FilePath == "" {
		req.FilePath = r.URL.Query().Get("filePath")
	}

	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, assets.CodeMissingFilePath, "filePath is required")
		return
	}

	if err := s.Config.Store.Delete(req.FilePath); err != nil {
		if errors.Is(err, assets.ErrPathTraversal) {
			slog.Warn("Rejected deletion outside storage root", "file_path", req.FilePath)
		}
		writeAssetError(w, r, err)
		return
	}

	if s.Config.Records != nil {
		if err := s.Config.Records.DeleteByPath(ctx, recordKey(req.FilePath)); err != nil {
			// The file is gone; a stale row is the lesser problem.
			slog.Error("Delete asset record", "file_path", req.FilePath, "err", err)
		}
	}

	slog.Info("Deleted asset", "file_path", req.FilePath)
	writeJSON(w, http.StatusOK, messageResponse{Message: "File deleted successfully"})
}

// handleServeAsset serves a committed asset. Anything that does not resolve
// to a committed file, including paths outside the root, is a plain 404.
func (s *Server) handleServeAsset(w http.ResponseWriter, r *http.Request, rel string) {
	f, info, err := s.Config.Store.Open(rel)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			writeAssetError(w, r, err)
			return
		}
		writeError(w, http.StatusNotFound, assets.CodeNotFound, "File not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", assets.ContentTypeFor(info.Name()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	// Generated names are never reused, so content at a URL never changes.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func parseEntityRef(entityType string, entityID string) (assets.EntityRef, error) {
	kind, ok := assets.ParseEntityKind(entityType)
	if !ok {
		return assets.EntityRef{}, &assets.Error{
			Kind:    assets.ErrValidation,
			Code:    assets.CodeInvalidEntity,
			Message: fmt.Sprintf("unknown entity type %q", entityType),
		}
	}
	if !assets.ValidEntityID(entityID) {
		return assets.EntityRef{}, &assets.Error{
			Kind:    assets.ErrValidation,
			Code:    assets.CodeInvalidEntity,
			Message: fmt.Sprintf("invalid entityId %q", entityID),
		}
	}
	return assets.EntityRef{Kind: kind, ID: entityID}, nil
}

func (s *Server) handleListAssets(ctx context.Context, w http.ResponseWriter, r *http.Request, entityType string, entityID string) {
	ref, err := parseEntityRef(entityType, entityID)
	if err != nil {
		writeAssetError(w, r, err)
		return
	}

	resp := assetListResponse{EntityType: string(ref.Kind), EntityID: ref.ID}

	if s.Config.Records != nil {
		list, err := s.Config.Records.ListByEntity(ctx, ref)
		if err != nil {
			slog.Error("List asset records", "entity_type", ref.Kind, "entity_id", ref.ID, "err", err)
			writeInternalError(w)
			return
		}
		resp.Assets = list
	} else {
		committed, err := s.Config.Store.List(ref)
		if err != nil {
			writeAssetError(w, r, err)
			return
		}
		resp.Assets = make([]records.Asset, 0, len(committed))
		for _, c := range committed {
			resp.Assets = append(resp.Assets, records.Asset{
				EntityType:   string(ref.Kind),
				EntityID:     ref.ID,
				DocumentType: documentTypeFor(c.RelativePath),
				FilePath:     c.RelativePath,
				FileURL:      c.PublicURL,
				FileSize:     c.Size,
				MimeType:     c.MimeType,
				OriginalName: c.OriginalName,
			})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// documentTypeFor recovers the category from the subfolder of a committed
// relative path.
func documentTypeFor(rel string) string {
	parts := strings.Split(rel, "/")
	if len(parts) < 4 {
		return string(assets.CategoryDocument)
	}
	switch parts[2] {
	case assets.CategoryLogo.Subfolder():
		return string(assets.CategoryLogo)
	case assets.CategoryPhoto.Subfolder():
		return string(assets.CategoryPhoto)
	default:
		return string(assets.CategoryDocument)
	}
}

func (s *Server) handleEntityPut(ctx context.Context, w http.ResponseWriter, r *http.Request, entityType string, entityID string) {
	ref, err := parseEntityRef(entityType, entityID)
	if err != nil {
		writeAssetError(w, r, err)
		return
	}

	var req entityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Request body must be a JSON object")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, formatValidationError(err))
		return
	}

	if err := s.Config.Entities.RegisterEntity(ctx, ref, req.DisplayName); err != nil {
		slog.Error("Register entity", "entity_type", ref.Kind, "entity_id", ref.ID, "err", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, entityResponse{EntityType: string(ref.Kind), EntityID: ref.ID, DisplayName: req.DisplayName})
}

func (s *Server) handleEntityGet(ctx context.Context, w http.ResponseWriter, r *http.Request, entityType string, entityID string) {
	ref, err := parseEntityRef(entityType, entityID)
	if err != nil {
		writeAssetError(w, r, err)
		return
	}

	exists, err := s.Config.Entities.Exists(ctx, ref)
	if err != nil {
		slog.Error("Lookup entity", "entity_type", ref.Kind, "entity_id", ref.ID, "err", err)
		writeInternalError(w)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, assets.CodeNotFound, "Entity not found")
		return
	}

	writeJSON(w, http.StatusOK, entityResponse{EntityType: string(ref.Kind), EntityID: ref.ID})
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealth(ctx context.Context, w http.ResponseWriter) {
	if p, ok := s.Config.Records.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			slog.Error("Health check", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
