package storage

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
)

func TestPostgresRepo_UpsertOptIn(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	optIn := model.NewOptIn(&model.OptIn{
		TenantID: testTenantID,
		Phone:    "+40721123456",
		Status:   model.OptInStatusOptedIn,
	})

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "wa_opt_ins"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertOptIn(ctx, optIn)
	assert.NoError(t, err)
}

func TestPostgresRepo_HasOptInConsent(t *testing.T) {
	testCases := []struct {
		name     string
		status   string
		expected bool
	}{
		{"opted in", model.OptInStatusOptedIn, true},
		{"opted out", model.OptInStatusOptedOut, false},
		{"unknown status", model.OptInStatusUnknown, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock, teardown := newTestRepo(t)
			t.Cleanup(teardown)
			ctx := contextWithTestTenant()

			rows := sqlmock.NewRows([]string{"id", "tenant_id", "phone", "status"}).
				AddRow("optin-1", testTenantID, "+40721123456", tc.status)

			mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wa_opt_ins" WHERE tenant_id = $1 AND phone = $2`)).
				WithArgs(testTenantID, "+40721123456", 1).
				WillReturnRows(rows)

			consent, err := repo.HasOptInConsent(ctx, "+40721123456")
			require.NoError(t, err)
			assert.Equal(t, tc.expected, consent)
		})
	}
}

func TestPostgresRepo_HasOptInConsent_UnknownNumber(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wa_opt_ins"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	consent, err := repo.HasOptInConsent(ctx, "+40799999999")
	require.NoError(t, err)
	assert.False(t, consent)
}

func TestPostgresRepo_FindApprovedTemplate_NotApproved(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "name", "status"}).
		AddRow("tpl-1", testTenantID, "order_confirmation", model.TemplateStatusPending)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wa_templates" WHERE tenant_id = $1 AND name = $2`)).
		WithArgs(testTenantID, "order_confirmation", 1).
		WillReturnRows(rows)

	_, err := repo.FindApprovedTemplate(ctx, "order_confirmation")
	require.Error(t, err)
	assert.True(t, apperrors.IsTemplateNotApprovedError(err))
}
