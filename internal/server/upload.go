package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"locker/internal/assets"
	"locker/internal/records"
)

var errFieldTooLong = errors.New("form field is too long")

type uploadForm struct {
	EntityID   string
	EntityType string
	FileType   string
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
	FileURL  string `json:"fileUrl"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// handleUpload streams a multipart upload through Stage and Commit. Parts
// are consumed in arrival order, so the file may be staged before the
// fields that name its category and owner have been read.
func (s *Server) handleUpload(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.Config.MaxRequestBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Expected a multipart/form-data request body")
		return
	}

	query := r.URL.Query()
	form := uploadForm{
		EntityID:   strings.TrimSpace(query.Get("entityId")),
		EntityType: strings.TrimSpace(query.Get("entityType")),
		FileType:   strings.TrimSpace(query.Get("fileType")),
	}

	var staged *assets.StagedAsset
	defer func() {
		// Removes the staged file on every early return and on panic. After
		// a successful commit there is nothing left to remove.
		s.Config.Store.Discard(staged)
	}()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeBodyError(w, r, err)
			return
		}

		switch part.FormName() {
		case "file":
			if staged != nil {
				_ = part.Close()
				drainBody(r)
				writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Only one file may be uploaded per request")
				return
			}

			var category assets.Category
			if form.FileType != "" {
				category = assets.ParseCategory(form.FileType)
			}

			staged, err = s.Config.Store.Stage(ctx, assets.Upload{
				Category:     category,
				OriginalName: part.FileName(),
				MimeType:     part.Header.Get("Content-Type"),
				Size:         -1,
				Body:         part,
			})
			_ = part.Close()
			if err != nil {
				writeBodyError(w, r, err)
				return
			}

		case "entityId", "entityType", "fileType":
			value, err := readField(part)
			_ = part.Close()
			if err != nil {
				writeBodyError(w, r, err)
				return
			}
			switch part.FormName() {
			case "entityId":
				form.EntityID = value
			case "entityType":
				form.EntityType = value
			case "fileType":
				form.FileType = value
			}

		default:
			_ = part.Close()
		}
	}

	if staged == nil {
		writeError(w, http.StatusBadRequest, CodeMissingFile, "No file was uploaded")
		return
	}

	category := assets.ParseCategory(form.FileType)
	staged.Category = category

	ref := assets.EntityRef{Kind: assets.DefaultEntityKind(category), ID: form.EntityID}
	if form.EntityType != "" {
		ref.Kind = assets.EntityKind(form.EntityType)
		if kind, ok := assets.ParseEntityKind(form.EntityType); ok {
			ref.Kind = kind
		}
	}

	if s.Config.RequireEntities && s.Config.Entities != nil && ref.ID != "" {
		if _, ok := assets.ParseEntityKind(string(ref.Kind)); ok {
			exists, err := s.Config.Entities.Exists(ctx, ref)
			if err != nil {
				slog.Error("Lookup entity", "entity_type", ref.Kind, "entity_id", ref.ID, "err", err)
				writeInternalError(w)
				return
			}
			if !exists {
				writeAssetError(w, r, &assets.Error{
					Kind:    assets.ErrMissingEntity,
					Code:    assets.CodeMissingEntity,
					Message: fmt.Sprintf("%s %q does not exist", ref.Kind, ref.ID),
				})
				return
			}
		}
	}

	committed, err := s.Config.Store.Commit(staged, ref)
	if err != nil {
		writeAssetError(w, r, err)
		return
	}

	if s.Config.Records != nil {
		_, err := s.Config.Records.Insert(ctx, records.Asset{
			EntityType:   string(ref.Kind),
			EntityID:     ref.ID,
			DocumentType: string(category),
			FilePath:     committed.RelativePath,
			FileURL:      committed.PublicURL,
			FileSize:     committed.Size,
			MimeType:     committed.MimeType,
			OriginalName: committed.OriginalName,
		})
		if err != nil {
			slog.Error("Persist asset record", "path", committed.RelativePath, "err", err)

			// Never report a file the record store does not know about.
			if delErr := s.Config.Store.Delete(committed.RelativePath); delErr != nil {
				slog.Error("Roll back committed asset", "path", committed.RelativePath, "err", delErr)
			}
			writeError(w, http.StatusInternalServerError, assets.CodeStorageError, "Failed to record the uploaded file")
			return
		}
	}

	slog.Info("Stored asset",
		"entity_type", ref.Kind,
		"entity_id", ref.ID,
		"path", committed.RelativePath,
		"size", committed.Size,
		"mime", committed.MimeType,
	)

	writeJSON(w, http.StatusCreated, UploadResponse{
		FileName: committed.OriginalName,
		FilePath: committed.RelativePath,
		FileURL:  committed.PublicURL,
		FileSize: committed.Size,
		MimeType: committed.MimeType,
	})
}

func readField(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxFieldBytes {
		return "", errFieldTooLong
	}
	return strings.TrimSpace(string(data)), nil
}

// drainBody consumes what is left of the request body, bounded by the
// MaxBytesReader installed on it, so that a client still sending the file
// receives the error response instead of a reset connection.
func drainBody(r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
}

// writeBodyError reports a failure while reading the request body.
func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	drainBody(r)

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		writeError(w, http.StatusBadRequest, assets.CodeFileTooLarge,
			fmt.Sprintf("Request body exceeds the %d byte limit", maxBytesErr.Limit))
	case errors.Is(err, errFieldTooLong):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Form field exceeds 1 KiB")
	default:
		var ae *assets.Error
		if errors.As(err, &ae) {
			writeAssetError(w, r, err)
			return
		}
		slog.Debug("Read upload body", "err", err)
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Malformed multipart request body")
	}
}
