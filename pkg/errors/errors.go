package errors

import (
	"fmt"
	"net/http"
)

// StandardError represents a standardized error response
type StandardError struct {
	Code    string `json:"error"`   // Error code/type (e.g., "EmptyCart", "SaleNotFound")
	Message string `json:"message"` // Human-readable error message
	Details string `json:"details"` // Additional details (field name, quantities, etc.)
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for the error
func (e *StandardError) HTTPStatus() int {
	switch e.Code {
	case "InvalidRequest", "ValidationError", "EmptyCart", "InsufficientStock", "NoWarehouse":
		return http.StatusBadRequest
	case "SaleNotFound", "ProductNotFound", "ResourceNotFound":
		return http.StatusNotFound
	case "Conflict":
		return http.StatusConflict
	case "SyncFailed", "RemoteRejected", "ServiceUnavailable":
		return http.StatusBadGateway
	case "SerializationError", "DatabaseError", "InternalError":
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewStandardError creates a new StandardError
func NewStandardError(errorCode, message, details string) *StandardError {
	return &StandardError{
		Code:    errorCode,
		Message: message,
		Details: details,
	}
}

// Common error constructors

func NewInvalidRequest(message, details string) *StandardError {
	return NewStandardError("InvalidRequest", message, details)
}

func NewEmptyCart() *StandardError {
	return NewStandardError("EmptyCart", "cart has no lines", "")
}

func NewInsufficientStock(productID string, available, requested int) *StandardError {
	return NewStandardError("InsufficientStock", "insufficient cached stock",
		fmt.Sprintf("Product: %s, Available: %d, Requested: %d", productID, available, requested))
}

func NewNoWarehouse(sellerID string) *StandardError {
	return NewStandardError("NoWarehouse", "no warehouse assigned to seller",
		fmt.Sprintf("Seller ID: %s", sellerID))
}

func NewSaleNotFound(localID int64) *StandardError {
	return NewStandardError("SaleNotFound", "sale not found",
		fmt.Sprintf("Local ID: %d", localID))
}

func NewProductNotFound(productID string) *StandardError {
	return NewStandardError("ProductNotFound", "product not found",
		fmt.Sprintf("Product ID: %s", productID))
}

func NewDatabaseError(operation string, err error) *StandardError {
	return NewStandardError("DatabaseError", fmt.Sprintf("database operation failed: %s", operation), err.Error())
}

func NewSyncFailed(err error) *StandardError {
	return NewStandardError("SyncFailed", "failed to sync sale to remote ledger", err.Error())
}

func NewRemoteRejected(reason string) *StandardError {
	return NewStandardError("RemoteRejected", "remote ledger rejected the sale", reason)
}

func NewSerializationError(err error) *StandardError {
	return NewStandardError("SerializationError", "failed to serialize data", err.Error())
}

func NewInternalError(message string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewStandardError("InternalError", message, details)
}
