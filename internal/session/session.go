package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/arisumika/dormlock-core/internal/entity"
	"github.com/arisumika/dormlock-core/internal/infrastructure/logging"
	"github.com/arisumika/dormlock-core/internal/proxy"
)

// State identifies how far through the discovery workflow a Session is.
// Transitions are one-directional; a Session never regresses.
type State string

// Session states, in workflow order.
const (
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
	StateSchoolsKnown  State = "schools_known"
	StateLocksKnown    State = "locks_known"
)

// rank orders states for one-directional transitions.
var rank = map[State]int{
	StateAnonymous:     0,
	StateAuthenticated: 1,
	StateSchoolsKnown:  2,
	StateLocksKnown:    3,
}

// Vendor API paths, relative to the account base URL or the tenant
// server URL.
const (
	loginPath   = "/login"
	schoolsPath = "/userschool/getbyuserid"
	locksPath   = "/dormuser/getuserlock"
)

// Vendor auth header names. All three are required together; the
// duplication of the user ID under two spellings is upstream's.
const (
	headerTokenData   = "token_data"
	headerTokenUserID = "token_userId"
	headerUserID      = "tokenUserId"
)

// Session is an authenticated workflow against the vendor API.
//
// It holds the account credentials (user ID and token) as private
// state once Login succeeds and attaches them to subsequent discovery
// calls. All methods are safe for concurrent use, though the workflow
// itself is sequential by nature.
type Session struct {
	transport proxy.Transport
	baseURL   string
	log       *logging.Logger

	mu     sync.Mutex
	state  State
	userID string
	token  string
}

// New creates an anonymous Session against the given account base URL.
func New(transport proxy.Transport, baseURL string, log *logging.Logger) *Session {
	return &Session{
		transport: transport,
		baseURL:   baseURL,
		log:       log,
		state:     StateAnonymous,
	}
}

// State returns the session's current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Login authenticates against the vendor API.
//
// The password is MD5-hashed before it leaves the process; the wire
// never carries the plaintext. A response with success=false and a msg
// field fails with *AuthError carrying that message verbatim. On
// success the session retains the user ID and token and transitions to
// Authenticated.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - username: Account identifier (telephone number)
//   - password: Plaintext password
//
// Returns:
//   - entity.User: The authenticated account
//   - error: *AuthError on rejection, transport errors otherwise
func (s *Session) Login(ctx context.Context, username, password string) (entity.User, error) {
	raw, err := s.transport.Request(ctx, s.baseURL+loginPath, proxy.Options{
		Body: map[string]string{
			"userName": username,
			"userPwd":  md5Hex(password),
		},
	})
	if err != nil {
		return entity.User{}, fmt.Errorf("login: %w", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return entity.User{}, fmt.Errorf("login: %w: %w", ErrUnexpectedResponse, err)
	}

	if success, ok := resp["success"].(bool); ok && !success {
		if msg, ok := resp["msg"].(string); ok && msg != "" {
			return entity.User{}, &AuthError{Msg: msg}
		}
	}

	user := entity.UserFromResponse(resp)
	if user.UserID == "" || user.Token == "" {
		return entity.User{}, fmt.Errorf("login: %w: missing userId or token", ErrUnexpectedResponse)
	}

	s.mu.Lock()
	s.userID = user.UserID
	s.token = user.Token
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.log.Info("login succeeded", "user_id", user.UserID)
	return user, nil
}

// Schools discovers the tenants the account belongs to.
//
// Requires at least Authenticated state. Each discovery refreshes the
// tenant tokens, so callers should replace any stored School values
// with the result.
func (s *Session) Schools(ctx context.Context) ([]entity.School, error) {
	userID, token, err := s.credentials()
	if err != nil {
		return nil, fmt.Errorf("schools: %w", err)
	}

	raw, err := s.transport.Request(ctx, s.baseURL+schoolsPath, proxy.Options{
		Body:    map[string]string{"userId": userID},
		Headers: authHeaders(token, userID),
	})
	if err != nil {
		return nil, fmt.Errorf("schools: %w", err)
	}

	records, err := decodeArray(raw)
	if err != nil {
		return nil, fmt.Errorf("schools: %w", err)
	}

	schools := make([]entity.School, 0, len(records))
	for _, rec := range records {
		schools = append(schools, entity.SchoolFromRecord(rec))
	}

	s.advance(StateSchoolsKnown)
	s.log.Info("schools discovered", "count", len(schools))
	return schools, nil
}

// Locks discovers the account's locks at one school.
//
// Requires at least Authenticated state; school discovery is not a
// prerequisite, so a School reconstructed from persisted state works.
// The call goes to the school's own server and carries the school
// token — never the account token — in the auth headers, because a
// tenant server rejects (or worse, confuses) credentials from another
// tenant.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - school: Tenant to query (server URL, number and token)
//   - username: Plaintext account identifier; its MD5 digest is baked
//     into each returned Lock
func (s *Session) Locks(ctx context.Context, school entity.School, username string) ([]entity.Lock, error) {
	userID, _, err := s.credentials()
	if err != nil {
		return nil, fmt.Errorf("locks: %w", err)
	}

	raw, err := s.transport.Request(ctx, school.ServerURL+locksPath, proxy.Options{
		Body: map[string]string{
			"schoolNo": school.SchoolNo,
			"userId":   userID,
		},
		Headers: authHeaders(school.Token, userID),
	})
	if err != nil {
		return nil, fmt.Errorf("locks: %w", err)
	}

	records, err := decodeArray(raw)
	if err != nil {
		return nil, fmt.Errorf("locks: %w", err)
	}

	hashedUsername := md5Hex(username)
	locks := make([]entity.Lock, 0, len(records))
	for _, rec := range records {
		lock := entity.LockFromRecord(rec, hashedUsername, school.SchoolNo)
		if err := lock.Validate(); err != nil {
			return nil, fmt.Errorf("locks: %w", err)
		}
		locks = append(locks, lock)
	}

	s.advance(StateLocksKnown)
	s.log.Info("locks discovered", "school_no", school.SchoolNo, "count", len(locks))
	return locks, nil
}

// credentials returns the retained user ID and token, or
// ErrNotAuthenticated when no login has succeeded yet.
func (s *Session) credentials() (userID, token string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rank[s.state] < rank[StateAuthenticated] {
		return "", "", ErrNotAuthenticated
	}
	return s.userID, s.token, nil
}

// advance moves the state forward; it never regresses.
func (s *Session) advance(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rank[to] > rank[s.state] {
		s.state = to
	}
}

// authHeaders builds the three vendor auth headers.
func authHeaders(token, userID string) map[string]string {
	return map[string]string{
		headerTokenData:   token,
		headerTokenUserID: userID,
		headerUserID:      userID,
	}
}

// decodeArray decodes a response expected to be a JSON array of
// objects.
func decodeArray(raw json.RawMessage) ([]map[string]any, error) {
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	return items, nil
}
