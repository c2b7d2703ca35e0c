package fhir

import (
	"fmt"
	"net/http"

	"github.com/winterop-com/fhirkit-sub003/internal/ir"
)

// IssueSeverity is the OperationOutcome issue severity.
type IssueSeverity string

const (
	SeverityFatal       IssueSeverity = "fatal"
	SeverityError       IssueSeverity = "error"
	SeverityWarning     IssueSeverity = "warning"
	SeverityInformation IssueSeverity = "information"
)

// IssueCode is the OperationOutcome issue type.
type IssueCode string

const (
	IssueNotFound      IssueCode = "not-found"
	IssueConflict      IssueCode = "conflict"
	IssueInvalid       IssueCode = "invalid"
	IssueTooCostly     IssueCode = "too-costly"
	IssueException     IssueCode = "exception"
	IssueInformational IssueCode = "informational"
)

// Issue is one OperationOutcome issue.
type Issue struct {
	Severity    IssueSeverity `json:"severity"`
	Code        IssueCode     `json:"code"`
	Diagnostics string        `json:"diagnostics,omitempty"`
}

// OperationOutcome is the error payload carried in responses.
type OperationOutcome struct {
	Issues []Issue
}

// ToIR renders the outcome as a resource body.
func (o OperationOutcome) ToIR() ir.IRObject {
	issues := make(ir.IRArray, 0, len(o.Issues))
	for _, is := range o.Issues {
		obj := ir.IRObject{
			"severity": ir.IRString(is.Severity),
			"code":     ir.IRString(is.Code),
		}
		if is.Diagnostics != "" {
			obj["diagnostics"] = ir.IRString(is.Diagnostics)
		}
		issues = append(issues, obj)
	}
	return ir.IRObject{
		"resourceType": ir.IRString("OperationOutcome"),
		"issue":        issues,
	}
}

// IssueCodeFor maps an error to its OperationOutcome issue code.
// A TransactionAborted takes the code of its cause.
func IssueCodeFor(err error) IssueCode {
	fe, ok := AsError(err)
	if !ok {
		return IssueException
	}
	switch fe.Code {
	case ErrCodeNotFound:
		return IssueNotFound
	case ErrCodeConflict, ErrCodeVersionConflict:
		return IssueConflict
	case ErrCodeInvalidRequest:
		return IssueInvalid
	case ErrCodeTooCostly:
		return IssueTooCostly
	case ErrCodeTransactionAborted:
		if fe.Cause == nil {
			return IssueInvalid
		}
		return IssueCodeFor(fe.Cause)
	}
	return IssueException
}

// StatusFor maps an error to the HTTP-style status used in response entries.
func StatusFor(err error) int {
	fe, ok := AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch fe.Code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeVersionConflict:
		return http.StatusPreconditionFailed
	case ErrCodeInvalidRequest, ErrCodeTooCostly:
		return http.StatusBadRequest
	case ErrCodeTransactionAborted:
		if fe.Cause == nil {
			return http.StatusBadRequest
		}
		return StatusFor(fe.Cause)
	}
	return http.StatusInternalServerError
}

// OutcomeFromError converts any error to a single-issue OperationOutcome.
// Transaction failures cite the zero-based entry index in diagnostics.
func OutcomeFromError(err error) OperationOutcome {
	severity := SeverityError
	if IssueCodeFor(err) == IssueException {
		severity = SeverityFatal
	}
	diag := err.Error()
	if fe, ok := AsError(err); ok && fe.Code == ErrCodeTransactionAborted {
		diag = fmt.Sprintf("transaction failed at entry %d: %v", fe.EntryIndex, fe.Cause)
	}
	return OperationOutcome{Issues: []Issue{{
		Severity:    severity,
		Code:        IssueCodeFor(err),
		Diagnostics: diag,
	}}}
}

// StatusLine renders a status code the way response entries carry it: "201 Created".
func StatusLine(code int) string {
	return fmt.Sprintf("%d %s", code, http.StatusText(code))
}
