package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// pathID describes a UUID route wildcard and the 400 reply for a malformed value.
type pathID struct {
	name    string
	code    string
	message string
}

var (
	projectIDParam = pathID{"pid", "invalid_project_id", "Invalid project ID format"}
	treeIDParam    = pathID{"tid", "invalid_tree_id", "Invalid decision tree ID format"}
	nodeIDParam    = pathID{"nid", "invalid_node_id", "Invalid node ID format"}
	optionIDParam  = pathID{"oid", "invalid_option_id", "Invalid option ID format"}
)

// parse reads the wildcard. On failure it writes the 400 reply and returns false.
func (p pathID) parse(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(p.name))
	if err == nil {
		return id, true
	}
	if werr := ErrorResponse(w, http.StatusBadRequest, p.code, p.message); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
	return uuid.Nil, false
}

// ParseProjectID reads {pid}. On false the 400 reply has been written.
func ParseProjectID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return projectIDParam.parse(w, r, logger)
}

// ParseTreeID reads {tid}.
func ParseTreeID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return treeIDParam.parse(w, r, logger)
}

// ParseNodeID reads {nid}.
func ParseNodeID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return nodeIDParam.parse(w, r, logger)
}

// ParseOptionID reads {oid}.
func ParseOptionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return optionIDParam.parse(w, r, logger)
}

// ParseProjectAndTreeIDs reads {pid} and {tid}, stopping at the first bad one.
func ParseProjectAndTreeIDs(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, uuid.UUID, bool) {
	projectID, ok := ParseProjectID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	treeID, ok := ParseTreeID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return projectID, treeID, true
}
