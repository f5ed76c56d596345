package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/arisumika/dormlock-core/internal/entity"
	"github.com/arisumika/dormlock-core/internal/infrastructure/logging"
	"github.com/arisumika/dormlock-core/internal/proxy"
)

// recordedCall captures one request made through the fake transport.
type recordedCall struct {
	targetURL string
	opts      proxy.Options
}

// fakeTransport replays queued responses and records every request.
type fakeTransport struct {
	responses []json.RawMessage
	errs      []error
	calls     []recordedCall
}

func (f *fakeTransport) Request(_ context.Context, targetURL string, opts proxy.Options) (json.RawMessage, error) {
	f.calls = append(f.calls, recordedCall{targetURL: targetURL, opts: opts})
	idx := len(f.calls) - 1
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeTransport) queue(raw string) {
	f.responses = append(f.responses, json.RawMessage(raw))
	f.errs = append(f.errs, nil)
}

func newSession(ft *fakeTransport) *Session {
	return New(ft, "https://base.example.com", logging.Default())
}

func login(t *testing.T, sess *Session, ft *fakeTransport) entity.User {
	t.Helper()
	ft.queue(`{"success":true,"userId":"u-1","token":"acct-tok","userTel":"13800000000"}`)
	user, err := sess.Login(context.Background(), "alice", "password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return user
}

func TestLoginSuccess(t *testing.T) {
	ft := &fakeTransport{}
	sess := newSession(ft)

	user := login(t, sess, ft)

	if user.UserID != "u-1" || user.Token != "acct-tok" {
		t.Errorf("Login() user = %+v", user)
	}
	if got := sess.State(); got != StateAuthenticated {
		t.Errorf("State() = %q, want %q", got, StateAuthenticated)
	}

	call := ft.calls[0]
	if call.targetURL != "https://base.example.com/login" {
		t.Errorf("login target = %q", call.targetURL)
	}

	body, ok := call.opts.Body.(map[string]string)
	if !ok {
		t.Fatalf("login body type = %T", call.opts.Body)
	}
	if body["userName"] != "alice" {
		t.Errorf("userName = %q", body["userName"])
	}
	// The wire carries the MD5 digest, never the plaintext.
	if body["userPwd"] != "5f4dcc3b5aa765d61d8327deb882cf99" {
		t.Errorf("userPwd = %q, want md5 digest of the password", body["userPwd"])
	}
}

func TestLoginRejected(t *testing.T) {
	ft := &fakeTransport{}
	sess := newSession(ft)
	ft.queue(`{"success":false,"msg":"bad password"}`)

	_, err := sess.Login(context.Background(), "alice", "wrong")

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Login() error = %v, want *AuthError", err)
	}
	// The vendor message surfaces verbatim.
	if authErr.Msg != "bad password" {
		t.Errorf("AuthError.Msg = %q, want %q", authErr.Msg, "bad password")
	}
	if got := sess.State(); got != StateAnonymous {
		t.Errorf("State() after failed login = %q, want %q", got, StateAnonymous)
	}
}

func TestLoginMissingCredentials(t *testing.T) {
	ft := &fakeTransport{}
	sess := newSession(ft)
	ft.queue(`{"success":true}`)

	_, err := sess.Login(context.Background(), "alice", "password")
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("Login() error = %v, want ErrUnexpectedResponse", err)
	}
}

func TestDiscoveryRequiresLogin(t *testing.T) {
	ft := &fakeTransport{}
	sess := newSession(ft)

	if _, err := sess.Schools(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Schools() before login error = %v, want ErrNotAuthenticated", err)
	}
	if _, err := sess.Locks(context.Background(), entity.School{}, "alice"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Locks() before login error = %v, want ErrNotAuthenticated", err)
	}
	if len(ft.calls) != 0 {
		t.Errorf("transport called %d times before login, want 0", len(ft.calls))
	}
}

func TestSchools(t *testing.T) {
	ft := &fakeTransport{}
	sess := newSession(ft)
	login(t, sess, ft)

	ft.queue(`[
		{"schoolNo":"1001","token":"school-tok","school":{"schoolName":"Example University","serverUrl":"https://tenant.example.com"}}
	]`)

	schools, err := sess.Schools(context.Background())
	if err != nil {
		t.Fatalf("Schools() error = %v", err)
	}
	if len(schools) != 1 {
		t.Fatalf("Schools() returned %d schools, want 1", len(schools))
	}

	want := entity.School{
		SchoolNo:   "1001",
		SchoolName: "Example University",
		ServerURL:  "https://tenant.example.com",
		Token:      "school-tok",
	}
	if schools[0] != want {
		t.Errorf("school = %+v, want %+v", schools[0], want)
	}

	call := ft.calls[1]
	if call.targetURL != "https://base.example.com/userschool/getbyuserid" {
		t.Errorf("schools target = %q", call.targetURL)
	}
	// Account-level call: account token in all three auth headers.
	if call.opts.Headers["token_data"] != "acct-tok" {
		t.Errorf("token_data = %q, want account token", call.opts.Headers["token_data"])
	}
	if call.opts.Headers["token_userId"] != "u-1" || call.opts.Headers["tokenUserId"] != "u-1" {
		t.Errorf("user headers = %v, want both spellings set", call.opts.Headers)
	}

	if got := sess.State(); got != StateSchoolsKnown {
		t.Errorf("State() = %q, want %q", got, StateSchoolsKnown)
	}
}

func TestLocksUsesSchoolCredentials(t *testing.T) {
	ft := &fakeTransport{}
	sess := newSession(ft)
	login(t, sess, ft)

	ft.queue(`[
		{
			"buildName":"Building7","dormNo":"205","lockNo":"A1:B2:C3:D4:E5:F6",
			"lockCharacterUuid":"char-uuid","lockServiceUuid":"svc-uuid","lockSecret":"shh"
		}
	]`)

	school := entity.School{
		SchoolNo:  "1001",
		ServerURL: "https://tenant.example.com",
		Token:     "school-tok",
	}
	locks, err := sess.Locks(context.Background(), school, "alice")
	if err != nil {
		t.Fatalf("Locks() error = %v", err)
	}
	if len(locks) != 1 {
		t.Fatalf("Locks() returned %d locks, want 1", len(locks))
	}

	call := ft.calls[1]
	if call.targetURL != "https://tenant.example.com/dormuser/getuserlock" {
		t.Errorf("locks target = %q, want tenant server", call.targetURL)
	}
	// Tenant-level call: the school token, never the account token.
	if call.opts.Headers["token_data"] != "school-tok" {
		t.Errorf("token_data = %q, want school token", call.opts.Headers["token_data"])
	}

	body, _ := call.opts.Body.(map[string]string) //nolint:errcheck // asserted shape below
	if body["schoolNo"] != "1001" || body["userId"] != "u-1" {
		t.Errorf("locks body = %v", body)
	}

	// The lock carries the MD5 digest of the login username.
	if locks[0].Username != "6384e2b2184bcbf58eccf10ca7a6563c" {
		t.Errorf("lock username = %q, want md5 digest", locks[0].Username)
	}
	if locks[0].SchoolNo != "1001" {
		t.Errorf("lock schoolNo = %q", locks[0].SchoolNo)
	}

	if got := sess.State(); got != StateLocksKnown {
		t.Errorf("State() = %q, want %q", got, StateLocksKnown)
	}
}

func TestLocksRejectsIncompleteRecords(t *testing.T) {
	ft := &fakeTransport{}
	sess := newSession(ft)
	login(t, sess, ft)

	// Record missing its secret: the whole discovery fails rather than
	// storing a lock that can never build an unlock frame.
	ft.queue(`[
		{"buildName":"B","dormNo":"1","lockNo":"AA","lockCharacterUuid":"c","lockServiceUuid":"s"}
	]`)

	_, err := sess.Locks(context.Background(), entity.School{SchoolNo: "1001", ServerURL: "https://t", Token: "tok"}, "alice")
	if !errors.Is(err, entity.ErrIncompleteLock) {
		t.Fatalf("Locks() error = %v, want ErrIncompleteLock", err)
	}
}

func TestDiscoveryRejectsNonArray(t *testing.T) {
	ft := &fakeTransport{}
	sess := newSession(ft)
	login(t, sess, ft)

	ft.queue(`{"success":false}`)

	if _, err := sess.Schools(context.Background()); !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("Schools() error = %v, want ErrUnexpectedResponse", err)
	}
}

func TestStateNeverRegresses(t *testing.T) {
	ft := &fakeTransport{}
	sess := newSession(ft)
	login(t, sess, ft)

	ft.queue(`[]`)
	if _, err := sess.Locks(context.Background(), entity.School{SchoolNo: "1", ServerURL: "https://t", Token: "k"}, "alice"); err != nil {
		t.Fatalf("Locks() error = %v", err)
	}
	if got := sess.State(); got != StateLocksKnown {
		t.Fatalf("State() = %q, want %q", got, StateLocksKnown)
	}

	// A later school discovery must not rewind the state.
	ft.queue(`[]`)
	if _, err := sess.Schools(context.Background()); err != nil {
		t.Fatalf("Schools() error = %v", err)
	}
	if got := sess.State(); got != StateLocksKnown {
		t.Errorf("State() after Schools() = %q, want %q", got, StateLocksKnown)
	}
}
