package errors

import "net/http"

// Error code constants. Errors carry code + params; callers decide how to
// render them. Backend logs always in English.

// Node registry error codes.
const (
	CodeNodeNotFound = "NODE_NOT_FOUND"
)

// Assignment graph error codes.
const (
	CodeAssignmentNotFound  = "ASSIGNMENT_NOT_FOUND"
	CodeSourceNotFound      = "SOURCE_NOT_FOUND"
	CodeDestinationNotFound = "DESTINATION_NOT_FOUND"
	CodeDuplicateAssignment = "DUPLICATE_ASSIGNMENT"
)

// Stock ledger error codes.
const (
	CodeStockCardNotFound    = "STOCK_CARD_NOT_FOUND"
	CodeNegativeStockOnHand  = "NEGATIVE_STOCK_ON_HAND"
	CodeBackdatedMovement    = "BACKDATED_MOVEMENT"
	CodeRecomputeConflict    = "RECOMPUTE_CONFLICT"
	CodeMovementUnauthorized = "MOVEMENT_NOT_AUTHORIZED"
)

// Validation error codes.
const (
	CodeIDProvided       = "ID_PROVIDED"
	CodeValidationFailed = "VALIDATION_FAILED"
)

// Convenience constructors using predefined codes.

// ErrNodeNotFoundf creates a node not found error.
func ErrNodeNotFoundf(nodeID string) *AppError {
	return (&AppError{
		Code:       CodeNodeNotFound,
		Message:    "movement node not found",
		HTTPStatus: http.StatusNotFound,
	}).WithParams(map[string]interface{}{"node_id": nodeID})
}

// ErrAssignmentNotFoundf creates an assignment not found error.
func ErrAssignmentNotFoundf(direction string) *AppError {
	return (&AppError{
		Code:       CodeAssignmentNotFound,
		Message:    "valid " + direction + " assignment not found",
		HTTPStatus: http.StatusNotFound,
	}).WithParams(map[string]interface{}{"direction": direction})
}

// ErrDuplicateAssignmentf creates a duplicate assignment error.
func ErrDuplicateAssignmentf(direction string) *AppError {
	return (&AppError{
		Code:       CodeDuplicateAssignment,
		Message:    "a " + direction + " assignment already exists for this program, facility type and node",
		HTTPStatus: http.StatusBadRequest,
	}).WithParams(map[string]interface{}{"direction": direction})
}

// ErrIDProvidedf creates a bad request error for client-supplied ids on create.
func ErrIDProvidedf(id string) *AppError {
	return (&AppError{
		Code:       CodeIDProvided,
		Message:    "id must not be provided on create; the system mints identity",
		HTTPStatus: http.StatusBadRequest,
	}).WithParams(map[string]interface{}{"id": id})
}

// ErrNegativeStockOnHandf creates a negative stock-on-hand validation error.
func ErrNegativeStockOnHandf(stockCardID string, balance int) *AppError {
	return (&AppError{
		Code:       CodeNegativeStockOnHand,
		Message:    "movement would drive stock on hand below zero",
		HTTPStatus: http.StatusBadRequest,
	}).WithParams(map[string]interface{}{"stock_card_id": stockCardID, "balance": balance})
}
