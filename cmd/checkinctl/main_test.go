package main

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/internal/auth"
	"checkin/internal/config"
)

func run(t *testing.T, cfg config.App, args ...string) (string, error) {
	t.Helper()
	cmd := rootCommand(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	cfg := config.App{JWTIssuer: "checkin", OperatorSigningKey: "k", OperatorTokenTTL: time.Hour}

	out, err := run(t, cfg, "token", "--subject", "ops")
	require.NoError(t, err)
	value := strings.SplitN(out, "\n", 2)[0]
	claims, err := auth.Parse(value, "k", "checkin")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleOperator, claims.Role)
	assert.Equal(t, "ops", claims.Subject)

	_, err = run(t, config.App{}, "token")
	assert.Error(t, err)
}

func TestPhotosCommand(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, "http://api.test/checkStudentPhotos",
		httpmock.NewStringResponder(http.StatusOK, `{"success":true,"summary":{"totalStudents":2,"photosFound":1,"photosNotFound":1,"recordsUpdated":0}}`))

	out, err := run(t, config.App{}, "photos", "--url", "http://api.test")
	require.NoError(t, err)
	assert.Contains(t, out, "Total students: 2")
	assert.Contains(t, out, "Photos found: 1")

	httpmock.RegisterResponder(http.MethodGet, "http://api.test/checkStudentPhotos",
		httpmock.NewStringResponder(http.StatusInternalServerError, `{"success":false,"error":"boom"}`))
	_, err = run(t, config.App{}, "photos", "--url", "http://api.test")
	assert.Error(t, err)
}
