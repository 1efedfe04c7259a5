package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/kasuganosora/friendhub/audit"
	"github.com/kasuganosora/friendhub/model"
	"github.com/kasuganosora/friendhub/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Log(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Action
	}
	return out
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *recordingAudit) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	rec := &recordingAudit{}
	svc := NewService(db, NewTokenIssuer("test-secret", 0), rec, testutil.Logger(t))
	svc.params = testParams
	return svc, db, rec
}

func signupInput(email string) SignupInput {
	return SignupInput{Email: email, Password: "password123", FirstName: "Ada", LastName: "Lovelace", Age: 36}
}

func TestSignup_ThenSignin(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	tok, err := svc.Signup(ctx, signupInput("ada@x.com"))
	require.NoError(t, err)

	var acc model.Account
	require.NoError(t, db.Where("email = ?", "ada@x.com").First(&acc).Error)

	claims, err := svc.tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, claims.AccountID)

	tok2, err := svc.Signin(ctx, "ada@x.com", "password123")
	require.NoError(t, err)
	claims2, err := svc.tokens.Verify(tok2)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, claims2.AccountID)
	assert.Equal(t, "ada@x.com", claims2.Email)
}

func TestSignup_StoresHashNotPassword(t *testing.T) {
	svc, db, _ := newTestService(t)

	_, err := svc.Signup(context.Background(), signupInput("ada@x.com"))
	require.NoError(t, err)

	var acc model.Account
	require.NoError(t, db.First(&acc).Error)
	assert.NotEqual(t, "password123", acc.PasswordHash)
	ok, err := VerifyPassword("password123", acc.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, signupInput("dup@x.com"))
	require.NoError(t, err)

	second := signupInput("dup@x.com")
	second.FirstName = "Other"
	second.Password = "different-pass"
	_, err = svc.Signup(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	var accounts []model.Account
	require.NoError(t, db.Find(&accounts).Error)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Ada", accounts[0].FirstName, "first account unaffected")

	_, err = svc.Signin(ctx, "dup@x.com", "password123")
	assert.NoError(t, err)
}

func TestSignin_UnknownAndWrongPasswordIndistinguishable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, signupInput("known@x.com"))
	require.NoError(t, err)

	_, errUnknown := svc.Signin(ctx, "unknown@x.com", "password123")
	_, errWrong := svc.Signin(ctx, "known@x.com", "wrong-password")

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestSignin_CorruptStoredHashIsServerError(t *testing.T) {
	svc, db, _ := newTestService(t)
	testutil.CreateAccount(t, db, "broken@x.com", "B", "B", 1)

	_, err := svc.Signin(context.Background(), "broken@x.com", "whatever")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestSignin_CancelledContext(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Signin(ctx, "a@x.com", "password123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuditTrail(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()

	_, _ = svc.Signup(ctx, signupInput("a@x.com"))
	_, _ = svc.Signin(ctx, "a@x.com", "password123")
	_, _ = svc.Signin(ctx, "a@x.com", "nope-nope")
	_, _ = svc.Signin(ctx, "ghost@x.com", "password123")

	assert.Equal(t, []string{
		audit.ActionSignup,
		audit.ActionSignin,
		audit.ActionSigninFailed,
		audit.ActionSigninFailed,
	}, rec.actions())
}
