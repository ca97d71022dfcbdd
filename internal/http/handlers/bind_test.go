package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/authhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type bindErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Errors  struct {
		JSON   string                `json:"json"`
		Field  string                `json:"field"`
		Fields []handlers.FieldError `json:"fields"`
	} `json:"errors"`
}

func bindRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/register", func(ctx *gin.Context) {
		var req handlers.RegisterRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusCreated)
	})
	r.POST("/confirm", func(ctx *gin.Context) {
		var req handlers.PasswordResetConfirmRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusAccepted)
	})
	return r
}

func postBind(t *testing.T, r *gin.Engine, path, body string) (*httptest.ResponseRecorder, bindErrorResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp bindErrorResponse
	if w.Code == http.StatusBadRequest {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
		}
	}
	return w, resp
}

func TestBindJSON_ValidationErrorsUseJSONFieldNames(t *testing.T) {
	w, resp := postBind(t, bindRouter(), "/register", `{"name":"Alice","password":"short"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}
	if resp.Status != "error" || resp.Message != "Validation failed." {
		t.Fatalf("unexpected envelope: %+v", resp)
	}

	wantRules := map[string]string{
		"email":              "required",
		"password":           "min",
		"confirmed_password": "required",
	}

	found := map[string]handlers.FieldError{}
	for _, fieldErr := range resp.Errors.Fields {
		found[fieldErr.Field] = fieldErr
	}

	for field, rule := range wantRules {
		fieldErr, ok := found[field]
		if !ok {
			t.Fatalf("missing field error for %q: %+v", field, resp.Errors.Fields)
		}
		if fieldErr.Rule != rule {
			t.Fatalf("field %q rule mismatch: got %q want %q", field, fieldErr.Rule, rule)
		}
		if fieldErr.Message == "" {
			t.Fatalf("field %q should include a non-empty message", field)
		}
	}
}

func TestBindJSON_PasswordMismatchHasDedicatedMessage(t *testing.T) {
	body := `{"name":"Alice","email":"alice@x.com","password":"secret123","confirmed_password":"secret124"}`
	w, resp := postBind(t, bindRouter(), "/register", body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
	if resp.Message != "Password and confirm password do not match." {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if len(resp.Errors.Fields) != 1 || resp.Errors.Fields[0].Field != "confirmed_password" || resp.Errors.Fields[0].Rule != "eqfield" {
		t.Fatalf("unexpected fields: %+v", resp.Errors.Fields)
	}
}

func TestBindJSON_OTPMustBeSixDigits(t *testing.T) {
	tests := []struct {
		name     string
		otp      string
		wantRule string
	}{
		{name: "too short", otp: "12345", wantRule: "len"},
		{name: "letters", otp: "12a456", wantRule: "numeric"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"email":"alice@x.com","otp":"` + tt.otp + `","password":"secret123","confirmed_password":"secret123"}`
			w, resp := postBind(t, bindRouter(), "/confirm", body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("got status %d, want 400", w.Code)
			}
			if len(resp.Errors.Fields) != 1 || resp.Errors.Fields[0].Field != "otp" || resp.Errors.Fields[0].Rule != tt.wantRule {
				t.Fatalf("unexpected fields: %+v", resp.Errors.Fields)
			}
		})
	}

	w, _ := postBind(t, bindRouter(), "/confirm", `{"email":"alice@x.com","otp":"012345","password":"secret123","confirmed_password":"secret123"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("valid body rejected: %d %s", w.Code, w.Body.String())
	}
}

func TestBindJSON_TypeMismatchUsesJSONFieldNames(t *testing.T) {
	body := `{"name":"Alice","email":"alice@x.com","password":12345678,"confirmed_password":"x"}`
	w, resp := postBind(t, bindRouter(), "/register", body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}
	if resp.Message != "Invalid request body." {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if resp.Errors.JSON != "invalid_json_type" {
		t.Fatalf("expected invalid_json_type, got %q", resp.Errors.JSON)
	}
	if resp.Errors.Field != "password" {
		t.Fatalf("expected detail field to be password, got %q", resp.Errors.Field)
	}
	if len(resp.Errors.Fields) == 0 || resp.Errors.Fields[0].Rule != "type" {
		t.Fatalf("expected a type rule in errors.fields, got %+v", resp.Errors.Fields)
	}
}

func TestBindJSON_SyntaxError(t *testing.T) {
	w, resp := postBind(t, bindRouter(), "/register", `{"name":`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
	if resp.Message != "Invalid request body." {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}
