package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"redditfit/features/post"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrUnknownKind     = errors.New("unknown job type")
	ErrInvalidPayload  = errors.New("invalid job data")
	ErrProcessorClosed = errors.New("job processor is shut down")
	ErrQuotaExceeded   = errors.New("job quota exceeded")
	ErrUserMismatch    = errors.New("userId does not match the authenticated user")
)

type Kind string

const (
	KindBulkRewrite     Kind = "bulk_rewrite"
	KindDataCleanup     Kind = "data_cleanup"
	KindAnalyticsUpdate Kind = "analytics_update"
	KindUserMigration   Kind = "user_migration"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Payload is the typed data of one job kind.
type Payload interface {
	Kind() Kind
}

type BulkRewrite struct {
	UserID string       `json:"userId"`
	Posts  []post.Draft `json:"posts"`
}

func (BulkRewrite) Kind() Kind { return KindBulkRewrite }

type DataCleanup struct {
	OlderThan time.Time `json:"olderThan"`
}

func (DataCleanup) Kind() Kind { return KindDataCleanup }

// AnalyticsUpdate computes per-user statistics when UserID is set and
// global ones otherwise.
type AnalyticsUpdate struct {
	UserID string `json:"userId,omitempty"`
}

func (AnalyticsUpdate) Kind() Kind { return KindAnalyticsUpdate }

type UserMigration struct {
	FromPlan string `json:"fromPlan"`
	ToPlan   string `json:"toPlan"`
}

func (UserMigration) Kind() Kind { return KindUserMigration }

// Job is a unit of background work. The processor owns every Job; callers
// only ever see copies.
type Job struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"type"`
	Data        Payload    `json:"data"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"result,omitempty"`
}

// DecodePayload turns an external {type, data} pair into a typed payload.
func DecodePayload(kind string, raw json.RawMessage) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch Kind(kind) {
	case KindBulkRewrite:
		var v BulkRewrite
		err = unmarshal(raw, &v)
		if err == nil && (v.UserID == "" || len(v.Posts) == 0) {
			err = fmt.Errorf("%w: bulk_rewrite needs userId and posts", ErrInvalidPayload)
		}
		p = v
	case KindDataCleanup:
		var v DataCleanup
		err = unmarshal(raw, &v)
		if err == nil && v.OlderThan.IsZero() {
			err = fmt.Errorf("%w: data_cleanup needs olderThan", ErrInvalidPayload)
		}
		p = v
	case KindAnalyticsUpdate:
		var v AnalyticsUpdate
		err = unmarshal(raw, &v)
		p = v
	case KindUserMigration:
		var v UserMigration
		err = unmarshal(raw, &v)
		if err == nil && (v.FromPlan == "" || v.ToPlan == "") {
			err = fmt.Errorf("%w: user_migration needs fromPlan and toPlan", ErrInvalidPayload)
		}
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// BindUser ties a payload to the authenticated caller. A bulk rewrite always
// runs as userID: a missing userId is filled in and a different one is
// rejected with ErrUserMismatch. An analytics update may omit userId for
// global figures but may not name someone else.
func BindUser(kind string, raw json.RawMessage, userID string) (json.RawMessage, error) {
	k := Kind(kind)
	if k != KindBulkRewrite && k != KindAnalyticsUpdate {
		return raw, nil
	}

	var fields map[string]json.RawMessage
	if err := unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}

	given := ""
	if v, ok := fields["userId"]; ok {
		if err := unmarshal(v, &given); err != nil {
			return nil, err
		}
	}
	if given != "" && given != userID {
		return nil, ErrUserMismatch
	}
	if k == KindAnalyticsUpdate {
		return raw, nil
	}

	id, err := json.Marshal(userID)
	if err != nil {
		return nil, err
	}
	fields["userId"] = id
	return json.Marshal(fields)
}

func unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
