// Package admission decides whether a request may reach OCR. Checks run in a
// fixed order (auth, size, type, rate) and the first failure rejects.
package admission

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/nidscan/nid-ocr-service/internal/auth"
	apperrors "github.com/nidscan/nid-ocr-service/internal/errors"
	"github.com/nidscan/nid-ocr-service/internal/ratelimit"
)

// State is a step of the admission state machine
type State string

const (
	StateReceived    State = "received"
	StateAuthChecked State = "auth_checked"
	StateSizeChecked State = "size_checked"
	StateTypeChecked State = "type_checked"
	StateRateChecked State = "rate_checked"
	StateAdmitted    State = "admitted"
	StateRejected    State = "rejected"
)

// Upload errors an Upload reports from Read
var (
	ErrTooLarge = goerrors.New("upload exceeds size limit")
	ErrMissing  = goerrors.New("no upload in request")
)

// Upload is the request payload as admission sees it. Size is the declared size,
// or -1 when unknown. Read returns at most limit bytes and ErrTooLarge when the
// payload is longer.
type Upload interface {
	Size() int64
	Read(limit int64) ([]byte, error)
}

// Request is what admission needs from an incoming request
type Request struct {
	Token      string
	ClientAddr string
	Upload     Upload
}

// Decision describes an admitted request
type Decision struct {
	ClientID  string
	Identity  auth.Identity
	MediaType string
	Data      []byte
	Trail     []State
}

// KeyBy selects what the rate limit is keyed on
type KeyBy string

const (
	KeyByToken KeyBy = "token"
	KeyByIP    KeyBy = "ip"
)

// Config holds the admission limits
type Config struct {
	MaxBytes     int64
	AllowedTypes []string
	Limit        int
	Window       time.Duration
	KeyBy        KeyBy
}

// Controller runs admission checks
type Controller struct {
	auth    *auth.Authenticator
	ledger  ratelimit.Ledger
	cfg     Config
	allowed map[string]bool
	now     func() time.Time
}

// NewController creates a controller
func NewController(a *auth.Authenticator, ledger ratelimit.Ledger, cfg Config) *Controller {
	allowed := make(map[string]bool, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[t] = true
	}
	return &Controller{auth: a, ledger: ledger, cfg: cfg, allowed: allowed, now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// Admit runs every check in order. On rejection the returned trail ends with
// StateRejected and the error is an admission *errors.Error.
func (c *Controller) Admit(ctx context.Context, req Request) (*Decision, error) {
	d := &Decision{Trail: []State{StateReceived}}
	reject := func(err error) (*Decision, error) {
		d.Trail = append(d.Trail, StateRejected)
		return d, err
	}

	id, err := c.auth.Authenticate(req.Token)
	if err != nil {
		return reject(err)
	}
	d.Identity = id
	d.Trail = append(d.Trail, StateAuthChecked)

	if req.Upload == nil {
		return reject(apperrors.NewMissingUploadError(nil))
	}
	if size := req.Upload.Size(); size > c.cfg.MaxBytes {
		return reject(apperrors.NewPayloadTooLargeError(size, c.cfg.MaxBytes))
	}
	data, err := req.Upload.Read(c.cfg.MaxBytes)
	switch {
	case goerrors.Is(err, ErrTooLarge):
		return reject(apperrors.NewPayloadTooLargeError(-1, c.cfg.MaxBytes))
	case goerrors.Is(err, ErrMissing):
		return reject(apperrors.NewMissingUploadError(err))
	case err != nil:
		return reject(apperrors.NewMissingUploadError(fmt.Errorf("read upload: %w", err)))
	case len(data) == 0:
		return reject(apperrors.NewMissingUploadError(ErrMissing))
	}
	d.Data = data
	d.Trail = append(d.Trail, StateSizeChecked)

	mt := mimetype.Detect(data)
	if !c.allowedType(mt) {
		return reject(apperrors.NewUnsupportedMediaTypeError(mt.String()))
	}
	d.MediaType = mt.String()
	d.Trail = append(d.Trail, StateTypeChecked)

	d.ClientID = c.clientID(id, req.ClientAddr)
	ok, err := c.ledger.Allow(ctx, d.ClientID, c.now())
	if err != nil {
		// ledger failures reject
		limited := apperrors.NewRateLimitedError(d.ClientID, c.cfg.Limit, c.cfg.Window)
		limited.Cause = err
		return reject(limited)
	}
	if !ok {
		return reject(apperrors.NewRateLimitedError(d.ClientID, c.cfg.Limit, c.cfg.Window))
	}
	d.Trail = append(d.Trail, StateRateChecked, StateAdmitted)
	return d, nil
}

// allowedType matches the sniffed type or any of its parents, so an alias such
// as image/jpg configured by an operator still matches.
func (c *Controller) allowedType(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if c.allowed[m.String()] {
			return true
		}
		// Is also compares the type's registered aliases
		for t := range c.allowed {
			if m.Is(t) {
				return true
			}
		}
	}
	return false
}

// clientID keys the budget on the issuing credential, so every token minted
// from one static token draws from the same budget.
func (c *Controller) clientID(id auth.Identity, addr string) string {
	if c.cfg.KeyBy == KeyByIP && addr != "" {
		return "ip:" + addr
	}
	if id.Credential != "" {
		return id.Credential
	}
	return id.Subject
}
