package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/content-service-backend/api"
	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/ruteri/content-service-backend/manager"
)

// maxBodySize is the maximum allowed JSON request body size (1MB).
const maxBodySize = 1024 * 1024

// Handler exposes the collection manager over HTTP.
type Handler struct {
	manager *manager.CollectionManager
	log     *slog.Logger
}

func NewHandler(m *manager.CollectionManager, log *slog.Logger) *Handler {
	return &Handler{manager: m, log: log}
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/bindings", h.HandleListBindings)
	r.Get("/collections", h.HandleListCollections)
	r.Post("/collections", h.HandleCreateCollection)
	r.Get("/collections/{id}", h.HandleReadCollection)
	r.Patch("/collections/{id}", h.HandlePatchCollection)
	r.Get("/collections/{id}/items", h.HandleListItems)
	r.Post("/collections/{id}/items", h.HandleAddItem)
	r.Get("/collections/{id}/items/{itemId}", h.HandleReadItem)
	r.Delete("/collections/{id}/items/{itemId}", h.HandleDeleteItem)
	r.Get("/collections/{id}/items/{itemId}/versions/{version}", h.HandleReadItemVersion)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err's status hint onto the response.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := interfaces.StatusHint(err)
	resp := api.ErrorResponse{Error: err.Error()}

	var me *interfaces.ManagerError
	if errors.As(err, &me) {
		resp.Subsystem = me.Subsystem
	}
	var verr *interfaces.ValidationError
	if errors.As(err, &verr) {
		resp.Violations = verr.Errors
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err, slog.String("path", r.URL.Path), slog.Int("status", status))
	} else {
		h.log.Debug("Request rejected", "err", err, slog.String("path", r.URL.Path), slog.Int("status", status))
	}
	writeJSON(w, status, resp)
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", interfaces.ErrValidation, fmt.Sprintf(format, args...))
}

func decodeJSON(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func (h *Handler) HandleListBindings(w http.ResponseWriter, r *http.Request) {
	bindings := h.manager.GetStorageBindings()
	if bindings == nil {
		bindings = []interfaces.StorageBinding{}
	}
	writeJSON(w, http.StatusOK, bindings)
}

func (h *Handler) HandleListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := h.manager.ListCollections(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if collections == nil {
		collections = []*interfaces.Collection{}
	}
	writeJSON(w, http.StatusOK, collections)
}

// HandleCreateCollection creates a collection from a JSON CreateCollectionCommand.
func (h *Handler) HandleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var cmd manager.CreateCollectionCommand
	if err := decodeJSON(r, w, &cmd); err != nil {
		h.writeError(w, r, err)
		return
	}
	details, err := h.manager.CreateCollection(r.Context(), cmd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, details)
}

func (h *Handler) HandleReadCollection(w http.ResponseWriter, r *http.Request) {
	details, err := h.manager.ReadCollection(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// collectionDocument is the patchable view of a collection.
type collectionDocument struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Properties  map[string]json.RawMessage `json:"properties"`
	Constraints []interfaces.Constraint    `json:"constraints"`
}

func newCollectionDocument(details *manager.CollectionDetails) (*collectionDocument, error) {
	doc := &collectionDocument{
		Name:        details.Collection.Name,
		Description: details.Collection.Description,
		Properties:  map[string]json.RawMessage{},
		Constraints: []interfaces.Constraint{},
	}
	if details.Properties != nil {
		for _, p := range details.Properties.Properties {
			raw, err := json.Marshal(p.Value.Interface())
			if err != nil {
				return nil, err
			}
			doc.Properties[p.Name] = raw
		}
	}
	if details.Constraints != nil {
		doc.Constraints = details.Constraints.Constraints
	}
	return doc, nil
}

// HandlePatchCollection applies a JSON merge patch (RFC 7386) or, with
// Content-Type application/json-patch+json, a JSON patch (RFC 6902) to the
// collection document {name, description, properties, constraints}.
// Changed properties are upserted and changed constraints are merged by name;
// removing a property or constraint is not supported.
func (h *Handler) HandlePatchCollection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	current, err := h.manager.ReadCollection(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, r, badRequest("failed to read body: %v", err))
		return
	}

	before, err := newCollectionDocument(current)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	original, err := json.Marshal(before)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var patched []byte
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == api.ContentTypeJSONPatch {
		patch, err := jsonpatch.DecodePatch(body)
		if err != nil {
			h.writeError(w, r, badRequest("invalid JSON patch: %v", err))
			return
		}
		if patched, err = patch.Apply(original); err != nil {
			h.writeError(w, r, badRequest("failed to apply JSON patch: %v", err))
			return
		}
	} else {
		if patched, err = jsonpatch.MergePatch(original, body); err != nil {
			h.writeError(w, r, badRequest("invalid merge patch: %v", err))
			return
		}
	}

	var after collectionDocument
	if err := json.Unmarshal(patched, &after); err != nil {
		h.writeError(w, r, badRequest("patched collection is invalid: %v", err))
		return
	}

	cmd, err := updateCommand(before, &after)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	details, err := h.manager.UpdateCollection(r.Context(), id, cmd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// updateCommand submits only what differs between the two documents.
func updateCommand(before, after *collectionDocument) (manager.UpdateCollectionCommand, error) {
	var cmd manager.UpdateCollectionCommand
	if after.Name != before.Name {
		cmd.Name = &after.Name
	}
	if after.Description != before.Description {
		cmd.Description = &after.Description
	}

	for name, raw := range after.Properties {
		if old, ok := before.Properties[name]; ok && jsonpatch.Equal(old, raw) {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return cmd, badRequest("property %q: %v", name, err)
		}
		if value == nil {
			continue
		}
		if cmd.Properties == nil {
			cmd.Properties = map[string]any{}
		}
		cmd.Properties[name] = value
	}

	oldConstraints, err := json.Marshal(before.Constraints)
	if err != nil {
		return cmd, err
	}
	newConstraints, err := json.Marshal(after.Constraints)
	if err != nil {
		return cmd, err
	}
	if !jsonpatch.Equal(oldConstraints, newConstraints) {
		cmd.Constraints = after.Constraints
	}
	return cmd, nil
}

func (h *Handler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.ListItems(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []*interfaces.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func parseProperties(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, badRequest("properties must be a JSON object: %v", err)
	}
	return props, nil
}

// HandleAddItem stores a new item. Two encodings are accepted:
//   - multipart/form-data with optional name, mimeType and properties fields
//     followed by a file part, which is streamed without buffering
//   - any other body is the raw content, named by X-Item-Name with properties
//     in X-Item-Properties and the mime type taken from Content-Type
func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	var (
		cmd     manager.AddItemCommand
		content io.Reader
		err     error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		cmd, content, err = readMultipartUpload(r)
	} else {
		cmd.Name = r.Header.Get(api.ItemNameHeader)
		cmd.MimeType = mediaType
		cmd.Properties, err = parseProperties(r.Header.Get(api.ItemPropertiesHeader))
		content = r.Body
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	details, err := h.manager.AddItemToCollection(r.Context(), r.PathValue("id"), cmd, content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, details)
}

func readMultipartUpload(r *http.Request) (manager.AddItemCommand, io.Reader, error) {
	var cmd manager.AddItemCommand
	mr, err := r.MultipartReader()
	if err != nil {
		return cmd, nil, badRequest("invalid multipart body: %v", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return cmd, nil, badRequest("multipart body has no file part")
		}
		if err != nil {
			return cmd, nil, badRequest("invalid multipart body: %v", err)
		}

		switch part.FormName() {
		case "file":
			if cmd.Name == "" {
				cmd.Name = part.FileName()
			}
			if cmd.MimeType == "" {
				cmd.MimeType = part.Header.Get("Content-Type")
			}
			return cmd, part, nil
		case "name", "mimeType", "properties":
			value, err := io.ReadAll(io.LimitReader(part, maxBodySize))
			if err != nil {
				return cmd, nil, badRequest("failed to read field %q: %v", part.FormName(), err)
			}
			switch part.FormName() {
			case "name":
				cmd.Name = string(value)
			case "mimeType":
				cmd.MimeType = string(value)
			default:
				if cmd.Properties, err = parseProperties(string(value)); err != nil {
					return cmd, nil, err
				}
			}
		}
	}
}

func (h *Handler) HandleReadItem(w http.ResponseWriter, r *http.Request) {
	details, err := h.manager.ReadItem(r.Context(), r.PathValue("id"), r.PathValue("itemId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) HandleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.DeleteItem(r.Context(), r.PathValue("id"), r.PathValue("itemId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseVersion accepts "latest" or a {major}_{minor} label.
func parseVersion(label string) (int, int, error) {
	if label == "latest" {
		return 0, 0, nil
	}
	majorStr, minorStr, ok := strings.Cut(label, "_")
	if !ok {
		return 0, 0, badRequest("version %q is not of the form major_minor", label)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return 0, 0, badRequest("invalid major version %q", majorStr)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil || minor < 0 {
		return 0, 0, badRequest("invalid minor version %q", minorStr)
	}
	return major, minor, nil
}

// HandleReadItemVersion streams the content of one item version.
func (h *Handler) HandleReadItemVersion(w http.ResponseWriter, r *http.Request) {
	major, minor, err := parseVersion(r.PathValue("version"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	opened, err := h.manager.ReadItemVersion(r.Context(), r.PathValue("id"), r.PathValue("itemId"), major, minor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer opened.Stream.Close()

	contentType := opened.Version.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if opened.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(opened.Size, 10))
	}
	if opened.Version.ContentHash != "" {
		w.Header().Set("ETag", strconv.Quote(opened.Version.ContentHash))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, opened.Stream); err != nil {
		h.log.Error("Failed to stream item version", "err", err,
			slog.String("itemId", opened.Version.ItemID),
			slog.String("version", opened.Version.VersionLabel()))
	}
}
