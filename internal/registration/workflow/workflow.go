// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package workflow implements the candidate lifecycle of the
// Provider-Registration service: intake, listing, and the optimistically
// locked approve/reject transitions.
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
	"github.com/lib/pq"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/weighbridge/internal/registration/db"
	"github.com/sapcc/weighbridge/internal/util"
)

// BillingClient provisions providers in the Billing service on approval.
// It is implemented by billingclient.Client.
type BillingClient interface {
	CreateProvider(ctx context.Context, name string) (providerID int64, err error)
}

// Workflow performs candidate operations against the candidate store.
type Workflow struct {
	DB       *gorp.DbMap
	Billing  BillingClient
	validate *validator.Validate
	// slots for test doubles
	timeNow             func() time.Time
	generateCandidateID func() string
}

// NewWorkflow builds a Workflow.
func NewWorkflow(dbm *gorp.DbMap, billing BillingClient, timeNow func() time.Time) *Workflow {
	return &Workflow{
		DB:                  dbm,
		Billing:             billing,
		validate:            validator.New(),
		timeNow:             timeNow,
		generateCandidateID: generateCandidateID,
	}
}

// OverrideGenerateCandidateID replaces the candidate ID generator, for
// tests that need deterministic IDs.
func (wf *Workflow) OverrideGenerateCandidateID(generate func() string) *Workflow {
	wf.generateCandidateID = generate
	return wf
}

func generateCandidateID() string {
	return must.Return(uuid.NewV4()).String()
}

// CandidateRequest is the payload of POST /candidates.
type CandidateRequest struct {
	CompanyName        string   `json:"company_name"          validate:"required,max=255"`
	ContactEmail       string   `json:"contact_email"         validate:"required,email"`
	Phone              string   `json:"phone"                 validate:"omitempty,max=32"`
	Products           []string `json:"products"              validate:"required,min=1,dive,oneof=apples oranges grapes bananas mangoes"`
	TruckCount         int64    `json:"truck_count"           validate:"required,gt=0"`
	CapacityTonsPerDay int64    `json:"capacity_tons_per_day" validate:"required,gt=0"`
	Location           string   `json:"location"              validate:"omitempty,max=255"`
}

// maxRejectionReasonLength bounds the optional rejection reason.
const maxRejectionReasonLength = 1000

// CreateCandidate validates and stores a new candidate in the pending
// state, at version 1.
func (wf *Workflow) CreateCandidate(req CandidateRequest) (*db.Candidate, error) {
	err := wf.validate.Struct(req)
	if err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return nil, validationErrorf("invalid candidate: %s", formatValidationErrors(validationErrs))
		}
		return nil, err
	}

	now := wf.timeNow().UTC()
	candidate := db.Candidate{
		ID:                 wf.generateCandidateID(),
		CompanyName:        strings.TrimSpace(req.CompanyName),
		ContactEmail:       strings.TrimSpace(req.ContactEmail),
		Phone:              optionalString(req.Phone),
		TruckCount:         req.TruckCount,
		CapacityTonsPerDay: req.CapacityTonsPerDay,
		Location:           optionalString(req.Location),
		Status:             db.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
		Version:            1,
	}
	err = candidate.SetProductList(req.Products)
	if err != nil {
		return nil, err
	}

	err = wf.DB.Insert(&candidate)
	if isUniqueViolation(err) {
		return nil, DuplicateEmailError{Email: candidate.ContactEmail}
	}
	if err != nil {
		return nil, err
	}
	return &candidate, nil
}

// GetCandidate returns the candidate with the given ID, or nil if no such
// candidate exists.
func (wf *Workflow) GetCandidate(candidateID string) (*db.Candidate, error) {
	var candidate db.Candidate
	err := wf.DB.SelectOne(&candidate, `SELECT * FROM candidates WHERE id = $1`, candidateID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &candidate, nil
}

// ListFilter describes the result set of a candidate listing.
type ListFilter struct {
	Status  string // empty = all statuses
	Product string // empty = all products
	Limit   int
	Offset  int
}

// pagination defaults and bounds for ReadListFilter
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ReadListFilter parses the query parameters of GET /candidates. Both
// pagination dialects are accepted: page/page_size, or limit/offset.
func ReadListFilter(query url.Values) (ListFilter, error) {
	filter := ListFilter{
		Status:  strings.TrimSpace(query.Get("status")),
		Product: strings.TrimSpace(query.Get("product")),
		Limit:   maxPageSize,
	}

	if query.Has("page") || query.Has("page_size") {
		page, err := parsePositiveInt(query.Get("page"), 1)
		if err != nil {
			return ListFilter{}, validationErrorf("invalid page: %s", err.Error())
		}
		pageSize, err := parsePositiveInt(query.Get("page_size"), defaultPageSize)
		if err != nil {
			return ListFilter{}, validationErrorf("invalid page_size: %s", err.Error())
		}
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
		filter.Limit = pageSize
		filter.Offset = (page - 1) * pageSize
		return filter, nil
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := parsePositiveInt(limitStr, 0)
		if err != nil {
			return ListFilter{}, validationErrorf("invalid limit: %s", err.Error())
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
		filter.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return ListFilter{}, validationErrorf("invalid offset: expected a non-negative integer, but got %q", offsetStr)
		}
		filter.Offset = offset
	}
	return filter, nil
}

func parsePositiveInt(input string, defaultValue int) (int, error) {
	if input == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(input)
	if err != nil || value < 1 {
		return 0, fmt.Errorf("expected a positive integer, but got %q", input)
	}
	return value, nil
}

var listCandidatesQuery = sqlext.SimplifyWhitespace(`
	SELECT * FROM candidates
	 WHERE ($1 = '' OR status = $1) AND ($2 = '' OR products @> $3)
	 ORDER BY created_at, id
	 LIMIT $4 OFFSET $5
`)

// ListCandidates lists candidates matching the given filter. All filter
// values are passed as bound parameters; the status is additionally
// validated against the enum up front.
func (wf *Workflow) ListCandidates(filter ListFilter) ([]db.Candidate, error) {
	if filter.Status != "" && !db.CandidateStatus(filter.Status).IsValid() {
		return nil, validationErrorf("invalid status filter %q: must be one of \"pending\", \"approved\", \"rejected\"", filter.Status)
	}

	// the JSONB containment probe needs the product as a JSON array literal
	productJSON := `["` + filter.Product + `"]`
	if strings.ContainsAny(filter.Product, `"\`) {
		// no valid product contains these characters
		return []db.Candidate{}, nil
	}

	var candidates []db.Candidate
	_, err := wf.DB.Select(&candidates, listCandidatesQuery,
		filter.Status, filter.Product, productJSON, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		candidates = []db.Candidate{}
	}
	return candidates, nil
}

// ApproveCandidate provisions a provider in the Billing service and flips
// the candidate to approved. The flip is guarded by the candidate's version
// as read at the start, so a concurrent mutation makes this call fail with
// ConcurrentModificationError.
func (wf *Workflow) ApproveCandidate(ctx context.Context, candidateID string) (*db.Candidate, error) {
	candidate, err := wf.GetCandidate(candidateID)
	if err != nil || candidate == nil {
		return nil, err
	}
	if candidate.Status != db.StatusPending {
		return nil, StateError{Message: "candidate is not pending (status is " + string(candidate.Status) + ")"}
	}

	providerID, err := wf.Billing.CreateProvider(ctx, candidate.CompanyName)
	if err != nil {
		return nil, UpstreamError{Inner: err}
	}

	result, err := wf.DB.Exec(sqlext.SimplifyWhitespace(`
		UPDATE candidates
		   SET status = $1, provider_id = $2, updated_at = $3, version = version + 1
		 WHERE id = $4 AND status = $5 AND version = $6
	`), db.StatusApproved, providerID, wf.timeNow().UTC(), candidateID, db.StatusPending, candidate.Version)
	if err != nil {
		return nil, err
	}
	rowCount, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowCount == 0 {
		// the provider row in Billing now has no approved candidate; this is
		// left for manual reconciliation and never retried automatically
		logg.Error("approval of candidate %s lost the optimistic lock after provider %d was created; this provider is now orphaned",
			candidateID, providerID)
		orphanedProvidersCounter.Inc()
		return nil, ConcurrentModificationError{CandidateID: candidateID}
	}

	candidateTransitionsCounter.WithLabelValues("approved").Inc()
	return wf.GetCandidate(candidateID)
}

// RejectCandidate flips the candidate to rejected, with the same optimistic
// lock as ApproveCandidate. No outbound call is involved.
func (wf *Workflow) RejectCandidate(candidateID, reason string) (*db.Candidate, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxRejectionReasonLength {
		return nil, validationErrorf("rejection reason must not exceed %d characters", maxRejectionReasonLength)
	}

	candidate, err := wf.GetCandidate(candidateID)
	if err != nil || candidate == nil {
		return nil, err
	}
	if candidate.Status != db.StatusPending {
		return nil, StateError{Message: "candidate is not pending (status is " + string(candidate.Status) + ")"}
	}

	result, err := wf.DB.Exec(sqlext.SimplifyWhitespace(`
		UPDATE candidates
		   SET status = $1, rejection_reason = $2, updated_at = $3, version = version + 1
		 WHERE id = $4 AND status = $5 AND version = $6
	`), db.StatusRejected, optionalString(reason), wf.timeNow().UTC(), candidateID, db.StatusPending, candidate.Version)
	if err != nil {
		return nil, err
	}
	rowCount, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowCount == 0 {
		return nil, ConcurrentModificationError{CandidateID: candidateID}
	}

	candidateTransitionsCounter.WithLabelValues("rejected").Inc()
	return wf.GetCandidate(candidateID)
}

// CandidateReport is the API representation of one candidate.
type CandidateReport struct {
	ID                 string             `json:"id"`
	CompanyName        string             `json:"company_name"`
	ContactEmail       string             `json:"contact_email"`
	Phone              *string            `json:"phone"`
	Products           []string           `json:"products"`
	TruckCount         int64              `json:"truck_count"`
	CapacityTonsPerDay int64              `json:"capacity_tons_per_day"`
	Location           *string            `json:"location"`
	Status             db.CandidateStatus `json:"status"`
	CreatedAt          string             `json:"created_at"` // yyyymmddhhmmss, UTC
	UpdatedAt          string             `json:"updated_at"`
	ProviderID         *int64             `json:"provider_id"`
	Version            int64              `json:"version"`
	RejectionReason    *string            `json:"rejection_reason"`
}

// ReportForCandidate renders a candidate row into its API representation.
func ReportForCandidate(candidate db.Candidate) (CandidateReport, error) {
	products, err := candidate.ProductList()
	if err != nil {
		return CandidateReport{}, err
	}
	return CandidateReport{
		ID:                 candidate.ID,
		CompanyName:        candidate.CompanyName,
		ContactEmail:       candidate.ContactEmail,
		Phone:              candidate.Phone,
		Products:           products,
		TruckCount:         candidate.TruckCount,
		CapacityTonsPerDay: candidate.CapacityTonsPerDay,
		Location:           candidate.Location,
		Status:             candidate.Status,
		CreatedAt:          util.FormatTimestamp(candidate.CreatedAt),
		UpdatedAt:          util.FormatTimestamp(candidate.UpdatedAt),
		ProviderID:         candidate.ProviderID,
		Version:            candidate.Version,
		RejectionReason:    candidate.RejectionReason,
	}, nil
}

func formatValidationErrors(errs validator.ValidationErrors) string {
	fields := make([]string, len(errs))
	for idx, fieldErr := range errs {
		fields[idx] = fieldErr.Field() + " fails " + fieldErr.Tag()
	}
	return strings.Join(fields, ", ")
}

func optionalString(input string) *string {
	value := strings.TrimSpace(input)
	if value == "" {
		return nil
	}
	return &value
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
