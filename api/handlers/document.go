package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gorilla/mux"

	"github.com/linesmerrill/commute-permit-api/api"
	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/models"
)

// Document serves CRUD and review routes for one document type
type Document[T models.Document] struct {
	DB databases.DocumentDatabase[T]
}

// immutableFields cannot be changed through an update
var immutableFields = map[string]bool{
	"_id":             true,
	"id":              true,
	"employee_id":     true,
	"status":          true,
	"approval_status": true,
	"approved_at":     true,
	"deleted_flag":    true,
	"deleted_at":      true,
	"created_at":      true,
}

// CreateHandler stores a new document awaiting review
func (d Document[T]) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var doc T
	if !decodeBody(w, r, &doc) {
		return
	}
	doc = resetMeta(doc)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	id, err := d.DB.InsertOne(ctx, doc)
	if err != nil {
		config.ErrorStatus("failed to create document", http.StatusInternalServerError, w, err)
		return
	}
	created, err := d.DB.FindOne(ctx, id)
	if err != nil {
		config.ErrorStatus("failed to get created document", http.StatusInternalServerError, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// resetMeta clears the review state a client must not set on create
func resetMeta[T models.Document](doc T) T {
	switch v := any(&doc).(type) {
	case *models.License:
		v.DocumentMeta = newMeta(v.EmployeeID)
	case *models.Vehicle:
		v.DocumentMeta = newMeta(v.EmployeeID)
	case *models.Insurance:
		v.DocumentMeta = newMeta(v.EmployeeID)
	}
	return doc
}

func newMeta(employeeID string) models.DocumentMeta {
	return models.DocumentMeta{
		EmployeeID:     employeeID,
		Status:         models.DocumentTemporary,
		ApprovalStatus: models.ApprovalPending,
	}
}

// GetHandler returns a non deleted document by id
func (d Document[T]) GetHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["document_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	doc, err := d.DB.FindOne(ctx, id)
	if err == nil && (*doc).Meta().DeletedFlag {
		err = databases.ErrNotFound
	}
	if err != nil {
		config.ErrorStatus("failed to get document by ID", lookupStatus(err), w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ListByEmployeeHandler returns an employee's non deleted documents
func (d Document[T]) ListByEmployeeHandler(w http.ResponseWriter, r *http.Request) {
	employeeID := mux.Vars(r)["employee_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	docs, err := d.DB.FindActive(ctx, databases.Eq("employee_id", employeeID))
	if err != nil {
		config.ErrorStatus("failed to get documents", http.StatusInternalServerError, w, err)
		return
	}
	if docs == nil {
		docs = []T{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// PendingHandler returns the approval queue
func (d Document[T]) PendingHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	docs, err := d.DB.Find(ctx, databases.Where(
		databases.NotDeleted(),
		databases.Eq("approval_status", models.ApprovalPending),
	).OrderBy("created_at", false))
	if err != nil {
		config.ErrorStatus("failed to get pending documents", http.StatusInternalServerError, w, err)
		return
	}
	if docs == nil {
		docs = []T{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// UpdateHandler changes the descriptive fields of a document
func (d Document[T]) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["document_id"]

	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	for k := range fields {
		if immutableFields[k] {
			delete(fields, k)
		}
	}
	if len(fields) == 0 {
		config.ErrorStatus("nothing to update", http.StatusBadRequest, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	current, err := d.DB.FindOne(ctx, id)
	if err == nil && (*current).Meta().DeletedFlag {
		err = databases.ErrNotFound
	}
	if err != nil {
		config.ErrorStatus("failed to get document by ID", lookupStatus(err), w, err)
		return
	}

	// decode the patch through the model so values keep their stored types
	merged, changes, err := mergeFields(*current, fields)
	if err != nil {
		config.ErrorStatus("invalid document fields", http.StatusBadRequest, w, err)
		return
	}
	if err := validate.Struct(merged); err != nil {
		config.ErrorStatus("invalid request", http.StatusBadRequest, w, err)
		return
	}
	if err := d.DB.UpdateOne(ctx, id, changes); err != nil {
		config.ErrorStatus("failed to update document", lookupStatus(err), w, err)
		return
	}
	updated, err := d.DB.FindOne(ctx, id)
	if err != nil {
		config.ErrorStatus("failed to get updated document", lookupStatus(err), w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteHandler soft deletes a document
func (d Document[T]) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["document_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if err := d.DB.SoftDelete(ctx, id); err != nil {
		config.ErrorStatus("failed to delete document", lookupStatus(err), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "document deleted"})
}

// ApprovalHandler approves or rejects a document
func (d Document[T]) ApprovalHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["document_id"]

	var req models.ApprovalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if err := d.DB.SetApproval(ctx, id, req.ApprovalStatus, req.RejectionReason); err != nil {
		config.ErrorStatus("failed to update approval status", lookupStatus(err), w, err)
		return
	}
	doc, err := d.DB.FindOne(ctx, id)
	if err != nil {
		config.ErrorStatus("failed to get document by ID", lookupStatus(err), w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// mergeFields applies a JSON patch to doc and returns the merged document
// along with the typed values of the patched fields
func mergeFields[T any](doc T, patch map[string]interface{}) (T, databases.Fields, error) {
	var merged T
	current, err := json.Marshal(doc)
	if err != nil {
		return merged, nil, err
	}
	base := map[string]interface{}{}
	if err := json.Unmarshal(current, &base); err != nil {
		return merged, nil, err
	}
	for k, v := range patch {
		base[k] = v
	}
	b, err := json.Marshal(base)
	if err != nil {
		return merged, nil, err
	}
	if err := json.Unmarshal(b, &merged); err != nil {
		return merged, nil, err
	}

	values := map[string]interface{}{}
	collectJSONFields(reflect.ValueOf(merged), values)
	changes := databases.Fields{}
	for k := range patch {
		v, ok := values[k]
		if !ok {
			return merged, nil, fmt.Errorf("unknown field %q", k)
		}
		changes[k] = v
	}
	return merged, changes, nil
}

func collectJSONFields(v reflect.Value, out map[string]interface{}) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			collectJSONFields(v.Field(i), out)
			continue
		}
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		out[name] = v.Field(i).Interface()
	}
}
