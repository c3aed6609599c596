package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/devconnector/internal/domain/profile"
	"github.com/geocoder89/devconnector/internal/domain/user"
	"github.com/geocoder89/devconnector/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type errorsResponse struct {
	Errors []handlers.FieldError `json:"errors"`
}

func bindRouter(newReq func() any) *gin.Engine {
	r := gin.New()
	r.POST("/bind", func(ctx *gin.Context) {
		req := newReq()
		if !handlers.BindJSON(ctx, req) {
			return
		}
		ctx.Status(http.StatusOK)
	})
	return r
}

func postBind(t *testing.T, r *gin.Engine, body string) errorsResponse {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/bind", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	var resp errorsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
	}

	return resp
}

func TestBindJSON_ValidationErrorsUseMsgTags(t *testing.T) {
	r := bindRouter(func() any { return &profile.ExperienceRequest{} })

	resp := postBind(t, r, `{"title":"Dev","company":"   "}`)

	want := map[string]string{
		"company": "Company is required",
		"from":    "From date is required",
	}

	if len(resp.Errors) != len(want) {
		t.Fatalf("got %d errors, want %d: %+v", len(resp.Errors), len(want), resp.Errors)
	}

	for _, fe := range resp.Errors {
		msg, ok := want[fe.Param]
		if !ok {
			t.Fatalf("unexpected param %q", fe.Param)
		}
		if fe.Msg != msg {
			t.Fatalf("param %q msg mismatch: got %q want %q", fe.Param, fe.Msg, msg)
		}
		if fe.Location != "body" {
			t.Fatalf("param %q location = %q", fe.Param, fe.Location)
		}
	}
}

func TestBindJSON_PointerFieldsRequiredAndNotBlank(t *testing.T) {
	r := bindRouter(func() any { return &profile.UpsertRequest{} })

	resp := postBind(t, r, `{"status":"","company":"Acme"}`)

	got := map[string]string{}
	for _, fe := range resp.Errors {
		got[fe.Param] = fe.Msg
	}

	if got["status"] != "Status is required" {
		t.Fatalf("status msg = %q", got["status"])
	}
	if got["skills"] != "Skills is required" {
		t.Fatalf("skills msg = %q", got["skills"])
	}
	if _, ok := got["company"]; ok {
		t.Fatalf("company is optional, got error %q", got["company"])
	}
}

func TestBindJSON_TypeMismatchUsesJSONFieldNames(t *testing.T) {
	r := bindRouter(func() any { return &user.LoginRequest{} })

	resp := postBind(t, r, `{"email":"a@b.co","password":123}`)

	if len(resp.Errors) != 1 {
		t.Fatalf("expected one error, got %+v", resp.Errors)
	}
	if resp.Errors[0].Param != "password" {
		t.Fatalf("expected param password, got %q", resp.Errors[0].Param)
	}
	if resp.Errors[0].Msg == "" {
		t.Fatalf("expected a non-empty msg")
	}
}

func TestBindJSON_MalformedBody(t *testing.T) {
	r := bindRouter(func() any { return &user.LoginRequest{} })

	resp := postBind(t, r, `{"email":`)

	if len(resp.Errors) != 1 || resp.Errors[0].Msg != "Invalid JSON body" {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}
}
