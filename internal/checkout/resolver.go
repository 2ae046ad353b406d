package checkout

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/wolfman30/clinic-checkout/internal/pending"
)

// Resolution is the outcome of ResolveSession.
type Resolution struct {
	SessionID   string
	CheckoutURL string
	Booking     *pending.Booking
	// FromStore is true when the session id came from the store rather than the caller.
	FromStore bool
	// StoredSessionID is the store's session id when it differs from SessionID.
	// The staged booking belongs to that session and is not attached.
	StoredSessionID string
}

// Mismatched reports whether the caller named a session other than the one
// the staged booking was created for.
func (r Resolution) Mismatched() bool { return r.StoredSessionID != "" }

func (r Resolution) session() Session {
	return Session{ID: r.SessionID, CheckoutURL: r.CheckoutURL, Booking: r.Booking}
}

// ResolveSession finds the checkout session for a flow. Explicit arguments
// win; otherwise the session id is read from the store. The staged booking is
// read from the store and may be absent; it is only attached when the store
// has no session id or the same one.
func ResolveSession(ctx context.Context, explicitURL, explicitSessionID string, store pending.Store) (Resolution, error) {
	res := Resolution{
		SessionID:   strings.TrimSpace(explicitSessionID),
		CheckoutURL: strings.TrimSpace(explicitURL),
	}
	if res.SessionID == "" && res.CheckoutURL != "" {
		res.SessionID = SessionIDFromURL(res.CheckoutURL)
	}

	if store != nil {
		stored, err := pending.LoadSessionID(ctx, store)
		switch {
		case err == nil:
		case errors.Is(err, pending.ErrNotFound):
			stored = ""
		default:
			return Resolution{}, &SessionResolutionError{Reason: "read stored session id", Err: err}
		}
		switch {
		case res.SessionID == "" && stored != "":
			res.SessionID = stored
			res.FromStore = true
		case res.SessionID != "" && stored != "" && stored != res.SessionID:
			res.StoredSessionID = stored
		}

		if !res.Mismatched() {
			booking, err := loadBooking(ctx, store)
			if err != nil {
				return Resolution{}, err
			}
			res.Booking = booking
		}
	}

	if res.SessionID == "" {
		return Resolution{}, &SessionResolutionError{Reason: "no checkout session id supplied or stored"}
	}
	return res, nil
}

func loadBooking(ctx context.Context, store pending.Store) (*pending.Booking, error) {
	booking, err := pending.LoadBooking(ctx, store)
	switch {
	case err == nil:
		return &booking, nil
	case errors.Is(err, pending.ErrNotFound):
		return nil, nil
	default:
		return nil, &SessionResolutionError{Reason: "read pending booking", Err: err}
	}
}

// SessionIDFromURL extracts a cs_ prefixed id from a checkout URL's path or
// query. It returns "" when the URL carries none.
func SessionIDFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	for _, key := range []string{"session_id", "checkout_session_id"} {
		if v := strings.TrimSpace(u.Query().Get(key)); strings.HasPrefix(v, "cs_") {
			return v
		}
	}
	segments := strings.Split(strings.Trim(path.Clean(u.Path), "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if strings.HasPrefix(segments[i], "cs_") {
			return segments[i]
		}
	}
	return ""
}
