// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sapcc/go-bits/assert"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/mock"
	"github.com/stretchr/testify/require"

	"github.com/sapcc/weighbridge/internal/registration/auth"
	"github.com/sapcc/weighbridge/internal/registration/workflow"
	"github.com/sapcc/weighbridge/internal/test"
)

const testAuthSecret = "supersecret"

type testSetup struct {
	Handler http.Handler
	DB      *gorp.DbMap
	Clock   *mock.Clock
	Billing *test.BillingClientDouble
	Auth    *auth.TokenIssuer
}

func setupTest(t *testing.T) testSetup {
	t.Helper()
	dbm := test.InitRegistrationDatabase(t, nil)
	clock := mock.NewClock()
	billing := &test.BillingClientDouble{NextProviderID: 42}

	candidateCounter := 0
	wf := workflow.NewWorkflow(dbm, billing, clock.Now).OverrideGenerateCandidateID(func() string {
		candidateCounter++
		return fmt.Sprintf("candidate-%d", candidateCounter)
	})

	issuer := auth.NewTokenIssuer(testAuthSecret, "admin", "password", clock.Now)
	handler := httpapi.Compose(
		NewV1API(wf, issuer),
		httpapi.WithoutLogging(),
	)
	return testSetup{Handler: handler, DB: dbm, Clock: clock, Billing: billing, Auth: issuer}
}

func (s testSetup) adminAuthHeader(t *testing.T) map[string]string {
	t.Helper()
	token, ok := s.Auth.Login("admin", "password")
	require.True(t, ok)
	return map[string]string{"Authorization": "Bearer " + token}
}

func candidateRequestBody(email string) assert.JSONObject {
	return assert.JSONObject{
		"company_name":          "ACME Produce",
		"contact_email":         email,
		"phone":                 "+49-89-1234",
		"products":              []string{"apples", "oranges"},
		"truck_count":           3,
		"capacity_tons_per_day": 40,
		"location":              "Munich",
	}
}

func candidateReport(id, email, timestamp string) assert.JSONObject {
	return assert.JSONObject{
		"id":                    id,
		"company_name":          "ACME Produce",
		"contact_email":         email,
		"phone":                 "+49-89-1234",
		"products":              []string{"apples", "oranges"},
		"truck_count":           3,
		"capacity_tons_per_day": 40,
		"location":              "Munich",
		"status":                "pending",
		"created_at":            timestamp,
		"updated_at":            timestamp,
		"provider_id":           nil,
		"version":               1,
		"rejection_reason":      nil,
	}
}

func createCandidate(t *testing.T, s testSetup, email string) {
	t.Helper()
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates",
		Body:         candidateRequestBody(email),
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)
}

func TestCandidateIntake(t *testing.T) {
	s := setupTest(t)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates",
		Body:         candidateRequestBody("owner@acme.test"),
		ExpectStatus: http.StatusCreated,
		ExpectBody:   candidateReport("candidate-1", "owner@acme.test", "19700101000000"),
	}.Check(t, s.Handler)

	// the contact email is unique across candidates
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates",
		Body:         candidateRequestBody("owner@acme.test"),
		ExpectStatus: http.StatusConflict,
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/candidates/candidate-1",
		ExpectStatus: http.StatusOK,
		ExpectBody:   candidateReport("candidate-1", "owner@acme.test", "19700101000000"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/candidates/no-such-candidate",
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)
}

func TestCandidateValidation(t *testing.T) {
	s := setupTest(t)

	invalidBodies := []assert.JSONObject{}
	for field, value := range map[string]any{
		"company_name":          "",
		"contact_email":         "not-an-email",
		"products":              []string{},
		"truck_count":           0,
		"capacity_tons_per_day": -1,
	} {
		body := candidateRequestBody("owner@acme.test")
		body[field] = value
		invalidBodies = append(invalidBodies, body)
	}
	// durian is not in the product vocabulary
	body := candidateRequestBody("owner@acme.test")
	body["products"] = []string{"apples", "durian"}
	invalidBodies = append(invalidBodies, body)

	for _, invalidBody := range invalidBodies {
		assert.HTTPRequest{
			Method:       "POST",
			Path:         "/candidates",
			Body:         invalidBody,
			ExpectStatus: http.StatusUnprocessableEntity,
		}.Check(t, s.Handler)
	}
}

func TestListCandidates(t *testing.T) {
	s := setupTest(t)
	for _, email := range []string{"one@acme.test", "two@acme.test", "three@acme.test"} {
		createCandidate(t, s, email)
		s.Clock.StepBy(1 * time.Minute)
	}
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates/candidate-2/reject",
		Header:       s.adminAuthHeader(t),
		ExpectStatus: http.StatusOK,
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/candidates",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONFixtureFile("fixtures/candidate-list-all.json"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/candidates?status=rejected",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONFixtureFile("fixtures/candidate-list-rejected.json"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/candidates?product=apples&page=2&page_size=1",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONFixtureFile("fixtures/candidate-list-page2.json"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/candidates?product=grapes",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONFixtureFile("fixtures/candidate-list-empty.json"),
	}.Check(t, s.Handler)
}

func TestListCandidatesRejectsInjection(t *testing.T) {
	s := setupTest(t)
	createCandidate(t, s, "owner@acme.test")

	// a status filter outside the enum is rejected up front
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/candidates?status=" + "pending%27%20OR%20%271%27%3D%271",
		ExpectStatus: http.StatusUnprocessableEntity,
	}.Check(t, s.Handler)

	// a product probe with JSON metacharacters matches nothing
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/candidates?product=%22%5D%3B%20DROP%20TABLE%20candidates%3B%20--",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONFixtureFile("fixtures/candidate-list-empty.json"),
	}.Check(t, s.Handler)

	// the table is still intact
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/candidates/candidate-1",
		ExpectStatus: http.StatusOK,
	}.Check(t, s.Handler)
}

func TestApproveCandidate(t *testing.T) {
	s := setupTest(t)
	createCandidate(t, s, "owner@acme.test")
	s.Clock.StepBy(1 * time.Hour)

	// admin only
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates/candidate-1/approve",
		ExpectStatus: http.StatusUnauthorized,
	}.Check(t, s.Handler)

	claims := jwt.MapClaims{
		"sub":  "auditor",
		"role": "viewer",
		"iat":  s.Clock.Now().Unix(),
		"exp":  s.Clock.Now().Add(auth.TokenTTL).Unix(),
	}
	viewerToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAuthSecret))
	require.NoError(t, err)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates/candidate-1/approve",
		Header:       map[string]string{"Authorization": "Bearer " + viewerToken},
		ExpectStatus: http.StatusForbidden,
	}.Check(t, s.Handler)
	require.Equal(t, 0, s.Billing.CallCount)

	// the approval provisions a provider and bumps the version
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates/candidate-1/approve",
		Header:       s.adminAuthHeader(t),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"id":                    "candidate-1",
			"company_name":          "ACME Produce",
			"contact_email":         "owner@acme.test",
			"phone":                 "+49-89-1234",
			"products":              []string{"apples", "oranges"},
			"truck_count":           3,
			"capacity_tons_per_day": 40,
			"location":              "Munich",
			"status":                "approved",
			"created_at":            "19700101000000",
			"updated_at":            "19700101010000",
			"provider_id":           42,
			"version":               2,
			"rejection_reason":      nil,
		},
	}.Check(t, s.Handler)
	require.Equal(t, 1, s.Billing.CallCount)

	// approval is not idempotent: the candidate is no longer pending
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates/candidate-1/approve",
		Header:       s.adminAuthHeader(t),
		ExpectStatus: http.StatusBadRequest,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates/candidate-1/reject",
		Header:       s.adminAuthHeader(t),
		ExpectStatus: http.StatusBadRequest,
	}.Check(t, s.Handler)
	require.Equal(t, 1, s.Billing.CallCount)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates/no-such-candidate/approve",
		Header:       s.adminAuthHeader(t),
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)
}

func TestApproveFailsWhenBillingIsDown(t *testing.T) {
	s := setupTest(t)
	createCandidate(t, s, "owner@acme.test")
	s.Billing.Err = fmt.Errorf("billing service returned 503: overloaded")

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates/candidate-1/approve",
		Header:       s.adminAuthHeader(t),
		ExpectStatus: http.StatusBadGateway,
	}.Check(t, s.Handler)

	// the candidate is untouched and can be approved later
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/candidates/candidate-1",
		ExpectStatus: http.StatusOK,
		ExpectBody:   candidateReport("candidate-1", "owner@acme.test", "19700101000000"),
	}.Check(t, s.Handler)
}

func TestRejectCandidate(t *testing.T) {
	s := setupTest(t)
	createCandidate(t, s, "one@acme.test")
	createCandidate(t, s, "two@acme.test")
	s.Clock.StepBy(1 * time.Hour)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates/candidate-1/reject",
		Header:       s.adminAuthHeader(t),
		Body:         assert.JSONObject{"reason": "incomplete paperwork"},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"id":                    "candidate-1",
			"company_name":          "ACME Produce",
			"contact_email":         "one@acme.test",
			"phone":                 "+49-89-1234",
			"products":              []string{"apples", "oranges"},
			"truck_count":           3,
			"capacity_tons_per_day": 40,
			"location":              "Munich",
			"status":                "rejected",
			"created_at":            "19700101000000",
			"updated_at":            "19700101010000",
			"provider_id":           nil,
			"version":               2,
			"rejection_reason":      "incomplete paperwork",
		},
	}.Check(t, s.Handler)
	require.Equal(t, 0, s.Billing.CallCount)

	// the reason is optional
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates/candidate-2/reject",
		Header:       s.adminAuthHeader(t),
		ExpectStatus: http.StatusOK,
	}.Check(t, s.Handler)

	// ...but bounded
	createCandidate(t, s, "three@acme.test")
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates/candidate-3/reject",
		Header:       s.adminAuthHeader(t),
		Body:         assert.JSONObject{"reason": strings.Repeat("x", 1001)},
		ExpectStatus: http.StatusUnprocessableEntity,
	}.Check(t, s.Handler)
}

// raceBillingClient simulates a concurrent mutation: it bumps the
// candidate's version while the approval is waiting for the provider to be
// created.
type raceBillingClient struct {
	DB          *gorp.DbMap
	CandidateID string
	ProviderID  int64
}

// CreateProvider implements the workflow.BillingClient interface.
func (c *raceBillingClient) CreateProvider(ctx context.Context, name string) (int64, error) {
	_, err := c.DB.Exec(`UPDATE candidates SET version = version + 1 WHERE id = $1`, c.CandidateID)
	if err != nil {
		return 0, err
	}
	return c.ProviderID, nil
}

func TestApproveLosesOptimisticLock(t *testing.T) {
	dbm := test.InitRegistrationDatabase(t, nil)
	clock := mock.NewClock()
	wf := workflow.NewWorkflow(dbm, &raceBillingClient{DB: dbm, CandidateID: "candidate-1", ProviderID: 42}, clock.Now).
		OverrideGenerateCandidateID(func() string { return "candidate-1" })
	issuer := auth.NewTokenIssuer(testAuthSecret, "admin", "password", clock.Now)
	handler := httpapi.Compose(NewV1API(wf, issuer), httpapi.WithoutLogging())
	s := testSetup{Handler: handler, DB: dbm, Clock: clock, Auth: issuer}

	createCandidate(t, s, "owner@acme.test")

	// the provider was created upstream, but the version check fails
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/candidates/candidate-1/approve",
		Header:       s.adminAuthHeader(t),
		ExpectStatus: http.StatusConflict,
	}.Check(t, s.Handler)

	// the candidate did not flip to approved
	candidate, err := wf.GetCandidate("candidate-1")
	require.NoError(t, err)
	require.NotNil(t, candidate)
	require.Equal(t, "pending", string(candidate.Status))
	require.Nil(t, candidate.ProviderID)
}

func TestLogin(t *testing.T) {
	s := setupTest(t)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/auth/login",
		Body:         assert.JSONObject{"username": "admin", "password": "wrong"},
		ExpectStatus: http.StatusUnauthorized,
	}.Check(t, s.Handler)

	token, ok := s.Auth.Login("admin", "password")
	require.True(t, ok)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/auth/login",
		Body:         assert.JSONObject{"username": "admin", "password": "password"},
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONObject{"token": token, "token_type": "Bearer"},
	}.Check(t, s.Handler)
}
